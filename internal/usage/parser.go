package usage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/valentindosimont/ccem/internal/pricing"
)

// ErrAborted is returned when a pass is cancelled. The context's error is
// wrapped alongside it.
var ErrAborted = errors.New("usage pass aborted")

func aborted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
}

// checkEvery is how many lines are read between cancellation checks.
const checkEvery = 100

// logRecord is the subset of a session log line we care about.
type logRecord struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Model string `json:"model"`
		Usage *struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// ParseLogFile reads newline-delimited records from r and returns an entry
// for every assistant message that carries usage. Malformed and unrelated
// lines are skipped. Records without a timestamp are stamped with now.
func ParseLogFile(ctx context.Context, r io.Reader, table pricing.Table, now time.Time) (FileStats, error) {
	stats := FileStats{Entries: []FileStatsEntry{}}
	br := bufio.NewReaderSize(r, 64*1024)

	for lineNo := 1; ; lineNo++ {
		if lineNo%checkEvery == 0 && ctx.Err() != nil {
			return FileStats{}, aborted(ctx)
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if entry, ok := parseRecord(line, table, now); ok {
				stats.Entries = append(stats.Entries, entry)
			}
		}
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return FileStats{}, fmt.Errorf("read log: %w", err)
		}
	}
}

func parseRecord(line []byte, table pricing.Table, now time.Time) (FileStatsEntry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return FileStatsEntry{}, false
	}

	var rec logRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return FileStatsEntry{}, false
	}
	if rec.Type != "assistant" || rec.Message == nil || rec.Message.Usage == nil {
		return FileStatsEntry{}, false
	}

	u := rec.Message.Usage
	tokens := TokenUsage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
	}

	model := rec.Message.Model
	if model == "" {
		model = UnknownModel
	}
	ts := rec.Timestamp
	if ts == "" {
		ts = formatISO(now)
	}

	return FileStatsEntry{
		Timestamp: ts,
		Model:     model,
		Usage: TokenUsageWithCost{
			TokenUsage: tokens,
			Cost:       Cost(tokens, pricing.GetModelPrice(model, table)),
		},
	}, true
}

// Cost prices u at p.
func Cost(u TokenUsage, p pricing.ModelPrice) float64 {
	return pricing.CalculateCost(u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheCreationTokens, p)
}

// GetClaudeProjectsDir returns the Claude projects directory path
func GetClaudeProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects"), nil
}
