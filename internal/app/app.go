package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/valentindosimont/ccem/internal/config"
	"github.com/valentindosimont/ccem/internal/daemon"
	"github.com/valentindosimont/ccem/internal/pricing"
	"github.com/valentindosimont/ccem/internal/report"
	"github.com/valentindosimont/ccem/internal/store"
	"github.com/valentindosimont/ccem/internal/tui"
	"github.com/valentindosimont/ccem/internal/usage"
)

// ErrNoCache is returned by Cached when no valid usage cache exists.
var ErrNoCache = errors.New("no usage cache available")

// LoadConfig loads configuration from path, or the default location when
// path is empty.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger returns a stderr text logger at debug level when debug is set,
// otherwise a logger that discards everything.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	if !debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
	prices *pricing.Resolver
	engine *usage.Engine

	storeMu sync.Mutex
	store   *store.Store
}

// New creates a new App
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("usage.timezone: %w", err)
	}

	prices := pricing.NewResolver(
		pricing.WithURL(cfg.Pricing.URL),
		pricing.WithFetchTimeout(cfg.FetchTimeout()),
		pricing.WithCachePath(cfg.PricesPath()),
		pricing.WithBundledPath(config.ExpandHome(cfg.Paths.BundledPrices)),
		pricing.WithOffline(cfg.Pricing.Offline),
		pricing.WithLogger(logger),
	)

	engine := usage.NewEngine(prices,
		usage.WithProjectsDir(cfg.ProjectsDir()),
		usage.WithCacheStore(&usage.CacheStore{Path: cfg.CachePath()}),
		usage.WithConcurrency(cfg.Usage.Concurrency),
		usage.WithLocation(loc),
		usage.WithLogger(logger),
	)

	return &App{
		config: cfg,
		logger: logger,
		loc:    loc,
		now:    time.Now,
		prices: prices,
		engine: engine,
	}, nil
}

// Close cleans up resources
func (a *App) Close() error {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) openStore() (*store.Store, error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.New(a.config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.store = st
	return st, nil
}

// archive saves the daily rollups and records the pass. Failures are
// logged; the archive never blocks reporting.
func (a *App) archive(passID string, stats usage.UsageStats) {
	st, err := a.openStore()
	if err != nil {
		a.logger.Warn("archive usage", "error", err)
		return
	}
	now := a.now()
	if err := st.SaveDaily(stats.DailyHistory, now); err != nil {
		a.logger.Warn("archive usage", "error", err)
	}
	if err := st.RecordPass(store.PassRecord{ID: passID, FinishedAt: now, Status: daemon.EventSnapshot.String()}); err != nil {
		a.logger.Warn("record pass", "error", err)
	}
}

func (a *App) snapshot(ctx context.Context) (usage.UsageStats, error) {
	stats, err := a.engine.ComputeSnapshot(ctx)
	if err != nil {
		return usage.UsageStats{}, err
	}
	a.archive(uuid.NewString(), stats)
	return stats, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Report runs a full pass and prints the summary and detail pages.
func (a *App) Report(ctx context.Context, w io.Writer, asJSON bool) error {
	stats, err := a.snapshot(ctx)
	if err != nil {
		return err
	}
	return a.render(w, stats, asJSON)
}

// Cached prints the persisted snapshot without reading any session log.
func (a *App) Cached(w io.Writer, asJSON bool) error {
	stats, ok := a.engine.CachedSnapshot()
	if !ok {
		return ErrNoCache
	}
	return a.render(w, stats, asJSON)
}

func (a *App) render(w io.Writer, stats usage.UsageStats, asJSON bool) error {
	if asJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintln(w, report.Summary(stats))
	return report.Detail(w, stats, a.now().In(a.loc))
}

// History refreshes the archive and prints days within [since, until].
// Without an archive it falls back to the days still present in the logs.
func (a *App) History(ctx context.Context, w io.Writer, since, until string, asJSON bool) error {
	stats, err := a.snapshot(ctx)
	if err != nil {
		return err
	}

	var points []usage.DailyPoint
	if st, err := a.openStore(); err != nil {
		a.logger.Warn("history archive unavailable, using live logs", "error", err)
		points = usage.DailySeries(stats.DailyHistory, since, until)
	} else if points, err = st.Daily(since, until); err != nil {
		return err
	}

	if asJSON {
		return writeJSON(w, points)
	}
	return report.History(w, points)
}

// Streak prints the number of consecutive days with usage ending today.
func (a *App) Streak(ctx context.Context, w io.Writer) error {
	stats, err := a.snapshot(ctx)
	if err != nil {
		return err
	}

	history := stats.DailyHistory
	if st, err := a.openStore(); err == nil {
		if archived, err := st.History(); err == nil {
			for day, u := range stats.DailyHistory {
				archived[day] = u
			}
			history = archived
		}
	}

	days := usage.Streak(history, a.now().In(a.loc))
	fmt.Fprintf(w, "%d day streak\n", days)
	return nil
}

// Passes prints the most recent archived passes, newest first.
func (a *App) Passes(w io.Writer, limit int, asJSON bool) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	recs, err := st.RecentPasses(limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, recs)
	}
	return report.Passes(w, recs)
}

// Prices resolves the price table and reports where it came from.
func (a *App) Prices(ctx context.Context, w io.Writer) error {
	table := a.prices.Load(ctx)
	fmt.Fprintf(w, "source: %s\nmodels: %d\n", a.prices.Source(), len(table))
	return nil
}

// Watch runs the live dashboard until the user quits.
func (a *App) Watch() error {
	refresher := daemon.NewRefresher(a.engine, a.logger)
	defer refresher.Stop()

	monitor := daemon.NewMonitor(a.config.ProjectsDir(), a.config.PollInterval(), a.config.Debounce(), a.logger)
	monitor.Start()
	defer monitor.Stop()

	model := tui.New(refresher, monitor, tui.Options{
		Cached:     a.engine.CachedSnapshot,
		OnSnapshot: a.archive,
		Now:        a.now,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(os.Stdout))
	_, err := p.Run()
	return err
}
