package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/valentindosimont/ccem/internal/pricing"
)

// DefaultConcurrency bounds how many log files are parsed at once.
const DefaultConcurrency = 5

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// PriceLoader supplies the price table for a pass.
type PriceLoader interface {
	Load(ctx context.Context) pricing.Table
}

// Engine computes usage snapshots from session logs, reusing the cached
// parse of every file whose fingerprint is unchanged.
type Engine struct {
	prices      PriceLoader
	projectsDir string
	cache       *CacheStore
	concurrency int
	now         func() time.Time
	loc         *time.Location
	logger      *slog.Logger
	onParse     func(path string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithProjectsDir sets the root holding one directory per project.
func WithProjectsDir(dir string) Option {
	return func(e *Engine) { e.projectsDir = dir }
}

// WithCacheStore sets where the incremental cache is persisted.
func WithCacheStore(s *CacheStore) Option {
	return func(e *Engine) { e.cache = s }
}

// WithConcurrency bounds parallel file parsing.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock sets the reference time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone used for day, week and month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithParseHook registers fn to be called before each fresh parse.
func WithParseHook(fn func(path string)) Option {
	return func(e *Engine) { e.onParse = fn }
}

// NewEngine creates an Engine reading ~/.claude/projects and caching to
// ~/.ccem/usage-cache.json unless overridden.
func NewEngine(prices PriceLoader, opts ...Option) *Engine {
	projectsDir, _ := GetClaudeProjectsDir()
	e := &Engine{
		prices:      prices,
		projectsDir: projectsDir,
		cache:       &CacheStore{Path: DefaultCachePath()},
		concurrency: DefaultConcurrency,
		now:         time.Now,
		loc:         time.Local,
		logger:      discardLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type fileResult struct {
	path  string
	meta  FileMeta
	stats FileStats
}

// ComputeSnapshot runs a full incremental pass. On cancellation it returns
// an error matching ErrAborted and leaves the persisted cache untouched.
func (e *Engine) ComputeSnapshot(ctx context.Context) (UsageStats, error) {
	if ctx.Err() != nil {
		return UsageStats{}, aborted(ctx)
	}

	start := e.now()
	table := e.prices.Load(ctx)
	files := ListLogFiles(e.projectsDir, e.logger)
	prev := e.loadCache()

	var parsed, reused atomic.Int32
	results := make([]*fileResult, len(files))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if ctx.Err() != nil {
				return aborted(ctx)
			}
			res, fresh, err := e.processFile(ctx, path, prev, table, start)
			if err != nil {
				return err
			}
			if res != nil {
				if fresh {
					parsed.Add(1)
				} else {
					reused.Add(1)
				}
			}
			results[i] = res
			if ctx.Err() != nil {
				return aborted(ctx)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UsageStats{}, err
	}
	if ctx.Err() != nil {
		return UsageStats{}, aborted(ctx)
	}

	next := &UsageCache{
		Version: CacheVersion,
		Files:   make(map[string]CachedFile, len(files)),
	}
	var entries []FileStatsEntry
	for _, res := range results {
		if res == nil {
			continue
		}
		next.Files[res.path] = CachedFile{Meta: res.meta, Stats: res.stats}
		entries = append(entries, res.stats.Entries...)
	}

	now := e.now()
	next.LastUpdated = formatISO(now)
	if e.cache != nil {
		if err := e.cache.Save(next); err != nil {
			e.logger.Warn("persist usage cache", "path", e.cache.Path, "error", err)
		}
	}

	e.logger.Debug("usage pass complete",
		"files", len(next.Files), "parsed", parsed.Load(), "reused", reused.Load(),
		"entries", len(entries), "took", now.Sub(start))

	return Aggregate(entries, now, e.loc), nil
}

// processFile returns nil without error when the file should be left out
// of this pass. fresh reports whether the file was parsed rather than
// taken from the cache.
func (e *Engine) processFile(ctx context.Context, path string, prev *UsageCache, table pricing.Table, now time.Time) (*fileResult, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		e.logger.Debug("stat log file", "path", path, "error", err)
		return nil, false, nil
	}
	meta := metaOf(info)

	if prev != nil {
		if cached, ok := prev.Files[path]; ok && cached.Meta == meta {
			return &fileResult{path: path, meta: meta, stats: cached.Stats}, false, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		e.logger.Debug("open log file", "path", path, "error", err)
		return nil, false, nil
	}
	defer func() { _ = f.Close() }()

	if e.onParse != nil {
		e.onParse(path)
	}
	stats, err := ParseLogFile(ctx, f, table, now)
	if errors.Is(err, ErrAborted) {
		return nil, false, err
	}
	if err != nil {
		e.logger.Debug("read log file", "path", path, "error", err)
		return nil, false, nil
	}
	return &fileResult{path: path, meta: meta, stats: stats}, true, nil
}

func (e *Engine) loadCache() *UsageCache {
	if e.cache == nil {
		return nil
	}
	c, err := e.cache.Load()
	if err != nil {
		e.logger.Debug("usage cache unavailable", "path", e.cache.Path, "error", err)
		return nil
	}
	return c
}

// CachedSnapshot aggregates the persisted cache without touching any log
// file. It reports false when no valid cache exists.
func (e *Engine) CachedSnapshot() (UsageStats, bool) {
	c := e.loadCache()
	if c == nil {
		return UsageStats{}, false
	}

	paths := lo.Keys(c.Files)
	sort.Strings(paths)

	var entries []FileStatsEntry
	for _, p := range paths {
		entries = append(entries, c.Files[p].Stats.Entries...)
	}
	return Aggregate(entries, e.now(), e.loc), true
}
