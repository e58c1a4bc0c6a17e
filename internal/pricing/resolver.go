package pricing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/valentindosimont/ccem/internal/atomicfile"
)

// Tier identifies which source produced a price table.
type Tier int

const (
	TierNone Tier = iota
	TierRemote
	TierUserCache
	TierBundled
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierRemote:
		return "remote"
	case TierUserCache:
		return "user-cache"
	case TierBundled:
		return "bundled"
	case TierDefault:
		return "default"
	default:
		return "none"
	}
}

const defaultFetchTimeout = time.Second

// Resolver loads the price table once and serves it for its lifetime.
type Resolver struct {
	url         string
	client      *http.Client
	timeout     time.Duration
	cachePath   string
	bundledPath string
	offline     bool
	logger      *slog.Logger

	mu     sync.Mutex
	table  Table
	source Tier
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithURL overrides the remote price list URL.
func WithURL(url string) ResolverOption {
	return func(r *Resolver) { r.url = url }
}

// WithHTTPClient sets the client used for the remote tier.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// WithFetchTimeout bounds the remote fetch.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCachePath sets the user price cache file, written after a
// successful remote fetch.
func WithCachePath(path string) ResolverOption {
	return func(r *Resolver) { r.cachePath = path }
}

// WithBundledPath sets the price file shipped with the installation.
func WithBundledPath(path string) ResolverOption {
	return func(r *Resolver) { r.bundledPath = path }
}

// WithOffline skips the remote tier.
func WithOffline(offline bool) ResolverOption {
	return func(r *Resolver) { r.offline = offline }
}

// WithLogger sets the logger that records tier fallbacks.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver. Without options it fetches from
// LiteLLMURL and falls back to the built-in defaults.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		url:     LiteLLMURL,
		client:  http.DefaultClient,
		timeout: defaultFetchTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the price table, resolving it on first use. Later calls
// return the same table without touching the network or disk.
func (r *Resolver) Load(ctx context.Context) Table {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table != nil {
		return r.table
	}
	r.table, r.source = r.resolve(ctx)
	r.logger.Debug("price table loaded", "tier", r.source.String(), "models", len(r.table))
	return r.table
}

// Source reports the tier that produced the loaded table.
func (r *Resolver) Source() Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

func (r *Resolver) resolve(ctx context.Context) (Table, Tier) {
	if !r.offline {
		// The table outlives the pass that first asks for it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		table, err := fetchTable(fetchCtx, r.client, r.url)
		cancel()
		if err == nil {
			r.persist(table)
			return table, TierRemote
		}
		r.logger.Debug("price tier unavailable", "tier", TierRemote.String(), "error", err)
	}

	table, err := readTableFile(r.cachePath)
	if err == nil {
		return table, TierUserCache
	}
	r.logger.Debug("price tier unavailable", "tier", TierUserCache.String(), "error", err)

	table, err = readTableFile(r.bundledPath)
	if err == nil {
		return table, TierBundled
	}
	r.logger.Debug("price tier unavailable", "tier", TierBundled.String(), "error", err)

	return DefaultPrices(), TierDefault
}

func (r *Resolver) persist(table Table) {
	if r.cachePath == "" {
		return
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		r.logger.Debug("encode price cache", "error", err)
		return
	}
	if err := atomicfile.WriteFile(r.cachePath, data, 0o644); err != nil {
		r.logger.Debug("save price cache", "path", r.cachePath, "error", err)
	}
}
