package usage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valentindosimont/ccem/internal/pricing"
)

type staticPrices pricing.Table

func (s staticPrices) Load(context.Context) pricing.Table { return pricing.Table(s) }

const sonnetRecord = `{"type":"assistant","timestamp":"2024-01-15T10:00:00Z","message":{"model":"claude-sonnet-4-5-20250929","usage":{"input_tokens":1000,"output_tokens":500,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}`

func writeLog(t *testing.T, root, project, name string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

type parseCounter struct {
	mu    sync.Mutex
	paths map[string]int
}

func (c *parseCounter) hook(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paths == nil {
		c.paths = make(map[string]int)
	}
	c.paths[path]++
}

func (c *parseCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.paths {
		n += v
	}
	return n
}

func (c *parseCounter) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[path]
}

func newTestEngine(t *testing.T, root string, counter *parseCounter) (*Engine, *CacheStore) {
	t.Helper()
	store := &CacheStore{Path: filepath.Join(t.TempDir(), "usage-cache.json")}
	e := NewEngine(staticPrices(testPrices),
		WithProjectsDir(root),
		WithCacheStore(store),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
		WithParseHook(counter.hook),
	)
	return e, store
}

func TestComputeSnapshotScenario(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "-proj-a", "s1.jsonl", sonnetRecord)
	writeLog(t, root, "-proj-b", "s2.jsonl", `{"type":"user","message":"hi"}`)

	e, _ := newTestEngine(t, root, &parseCounter{})
	stats, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ComputeSnapshot failed: %v", err)
	}

	if math.Abs(stats.Total.Cost-0.0105) > 1e-12 {
		t.Errorf("Total.Cost = %v, want 0.0105", stats.Total.Cost)
	}
	if got := stats.DailyHistory["2024-01-15"].InputTokens; got != 1000 {
		t.Errorf("DailyHistory[2024-01-15].InputTokens = %d, want 1000", got)
	}
	if got := stats.ByModel["claude-sonnet-4-5"].OutputTokens; got != 500 {
		t.Errorf("ByModel[claude-sonnet-4-5].OutputTokens = %d, want 500", got)
	}
	// 2024-01-15 is in the week of fixedNow (Wed 2024-01-17) but not today.
	if stats.Week.InputTokens != 1000 || stats.Today.InputTokens != 0 {
		t.Errorf("Week/Today = %d/%d, want 1000/0", stats.Week.InputTokens, stats.Today.InputTokens)
	}
}

func TestComputeSnapshotIdempotent(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p", "a.jsonl", sonnetRecord)
	writeLog(t, root, "p", "b.jsonl", sonnetRecord, sonnetRecord)

	counter := &parseCounter{}
	e, _ := newTestEngine(t, root, counter)

	first, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if counter.total() != 2 {
		t.Fatalf("first pass parsed %d files, want 2", counter.total())
	}

	second, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if counter.total() != 2 {
		t.Errorf("second pass re-parsed files: total parses = %d, want 2", counter.total())
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("snapshots differ:\n%s\n%s", a, b)
	}
}

func TestComputeSnapshotInvalidatesChangedFile(t *testing.T) {
	root := t.TempDir()
	changed := writeLog(t, root, "p", "a.jsonl", sonnetRecord)
	untouched := writeLog(t, root, "p", "b.jsonl", sonnetRecord)
	touched := writeLog(t, root, "q", "c.jsonl", sonnetRecord)

	counter := &parseCounter{}
	e, _ := newTestEngine(t, root, counter)
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	// Size change.
	f, err := os.OpenFile(changed, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(sonnetRecord + "\n")
	_ = f.Close()

	// Mtime change only.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(touched, later, later); err != nil {
		t.Fatal(err)
	}

	stats, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	if counter.count(changed) != 2 {
		t.Errorf("changed file parsed %d times, want 2", counter.count(changed))
	}
	if counter.count(touched) != 2 {
		t.Errorf("touched file parsed %d times, want 2", counter.count(touched))
	}
	if counter.count(untouched) != 1 {
		t.Errorf("untouched file parsed %d times, want 1", counter.count(untouched))
	}
	if stats.Total.InputTokens != 4000 {
		t.Errorf("Total.InputTokens = %d, want 4000", stats.Total.InputTokens)
	}
}

func TestComputeSnapshotDropsDeletedFiles(t *testing.T) {
	root := t.TempDir()
	keep := writeLog(t, root, "p", "keep.jsonl", sonnetRecord)
	gone := writeLog(t, root, "p", "gone.jsonl", sonnetRecord)

	e, store := newTestEngine(t, root, &parseCounter{})
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	c, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(c.Files) != 1 {
		t.Errorf("cache holds %d files, want 1", len(c.Files))
	}
	if _, ok := c.Files[keep]; !ok {
		t.Errorf("cache is missing %s", keep)
	}
	if c.Version != CacheVersion {
		t.Errorf("Version = %d, want %d", c.Version, CacheVersion)
	}
}

func TestComputeSnapshotAbortedLeavesCache(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p", "a.jsonl", sonnetRecord)

	e, store := newTestEngine(t, root, &parseCounter{})
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path)
	if err != nil {
		t.Fatal(err)
	}

	writeLog(t, root, "p", "b.jsonl", sonnetRecord)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.ComputeSnapshot(ctx)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}

	after, err := os.ReadFile(store.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("aborted pass modified the cache")
	}
}

func TestComputeSnapshotAbortMidPass(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.jsonl", "c.jsonl", "d.jsonl"} {
		writeLog(t, root, "p", name, sonnetRecord)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := &CacheStore{Path: filepath.Join(t.TempDir(), "usage-cache.json")}
	e := NewEngine(staticPrices(testPrices),
		WithProjectsDir(root),
		WithCacheStore(store),
		WithConcurrency(1),
		WithParseHook(func(string) { cancel() }),
	)

	_, err := e.ComputeSnapshot(ctx)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if _, err := os.Stat(store.Path); !os.IsNotExist(err) {
		t.Errorf("cache written by aborted pass: stat err = %v", err)
	}
}

func TestComputeSnapshotVersionMismatch(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "p", "a.jsonl", sonnetRecord)

	counter := &parseCounter{}
	e, store := newTestEngine(t, root, counter)
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	c, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	c.Version = CacheVersion + 1
	data, _ := json.Marshal(c)
	if err := os.WriteFile(store.Path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, ok := e.CachedSnapshot(); ok {
		t.Error("CachedSnapshot() used a cache with the wrong version")
	}
	if _, err := e.ComputeSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if counter.count(path) != 2 {
		t.Errorf("file parsed %d times, want 2 after version mismatch", counter.count(path))
	}
}

func TestComputeSnapshotPersistFailure(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p", "a.jsonl", sonnetRecord)

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(staticPrices(testPrices),
		WithProjectsDir(root),
		WithCacheStore(&CacheStore{Path: filepath.Join(blocker, "usage-cache.json")}),
	)

	stats, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ComputeSnapshot failed: %v", err)
	}
	if stats.Total.InputTokens != 1000 {
		t.Errorf("Total.InputTokens = %d, want 1000", stats.Total.InputTokens)
	}
}

func TestComputeSnapshotMissingRoot(t *testing.T) {
	e, _ := newTestEngine(t, filepath.Join(t.TempDir(), "nope"), &parseCounter{})
	stats, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ComputeSnapshot failed: %v", err)
	}
	if stats.Total != (TokenUsageWithCost{}) {
		t.Errorf("Total = %+v, want zero", stats.Total)
	}
}

func TestCachedSnapshot(t *testing.T) {
	root := t.TempDir()
	writeLog(t, root, "p", "a.jsonl", sonnetRecord)

	counter := &parseCounter{}
	e, _ := newTestEngine(t, root, counter)

	if _, ok := e.CachedSnapshot(); ok {
		t.Fatal("CachedSnapshot() reported a cache before any pass")
	}

	full, err := e.ComputeSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Later writes are not visible to the fast path.
	writeLog(t, root, "p", "b.jsonl", sonnetRecord)

	cached, ok := e.CachedSnapshot()
	if !ok {
		t.Fatal("CachedSnapshot() = false, want true")
	}
	if cached.Total != full.Total {
		t.Errorf("cached Total = %+v, want %+v", cached.Total, full.Total)
	}
	if counter.total() != 1 {
		t.Errorf("parses = %d, want 1", counter.total())
	}
}
