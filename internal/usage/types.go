package usage

// UnknownModel is recorded for assistant records that carry no model name.
const UnknownModel = "unknown"

// CacheVersion is the schema version of the persisted UsageCache. A cache
// with any other version is discarded as a whole.
const CacheVersion = 1

// TokenUsage represents token counts from one or more assistant messages.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// TokenUsageWithCost is TokenUsage plus its USD cost.
type TokenUsageWithCost struct {
	TokenUsage
	Cost float64 `json:"cost"`
}

// Add adds another TokenUsageWithCost to this one
func (t *TokenUsageWithCost) Add(other TokenUsageWithCost) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.Cost += other.Cost
}

// FileStatsEntry is one assistant response parsed from a log file.
type FileStatsEntry struct {
	Timestamp string             `json:"timestamp"`
	Model     string             `json:"model"`
	Usage     TokenUsageWithCost `json:"usage"`
}

// FileStats holds the entries of one log file in file order.
type FileStats struct {
	Entries []FileStatsEntry `json:"entries"`
}

// FileMeta fingerprints a file's on-disk state.
type FileMeta struct {
	Mtime float64 `json:"mtime"` // ms since epoch
	Size  int64   `json:"size"`
}

// CachedFile is the cached parse of one log file.
type CachedFile struct {
	Meta  FileMeta  `json:"meta"`
	Stats FileStats `json:"stats"`
}

// UsageCache is the persisted incremental parse state.
type UsageCache struct {
	Version     int                   `json:"version"`
	Files       map[string]CachedFile `json:"files"`
	LastUpdated string                `json:"lastUpdated"`
}

// UsageStats is an aggregated snapshot.
type UsageStats struct {
	Today        TokenUsageWithCost            `json:"today"`
	Week         TokenUsageWithCost            `json:"week"`
	Month        TokenUsageWithCost            `json:"month"`
	Total        TokenUsageWithCost            `json:"total"`
	DailyHistory map[string]TokenUsageWithCost `json:"dailyHistory"`
	ByModel      map[string]TokenUsageWithCost `json:"byModel"`
	LastUpdated  string                        `json:"lastUpdated"`
}
