package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valentindosimont/ccem/internal/usage"
)

// Snapshotter runs one full usage pass.
type Snapshotter interface {
	ComputeSnapshot(ctx context.Context) (usage.UsageStats, error)
}

// Event reports the progress of a usage pass
type Event struct {
	Type   EventType
	PassID string
	Stats  usage.UsageStats
	Err    error
	Time   time.Time
}

// EventType represents the type of event
type EventType int

const (
	EventPassStarted EventType = iota
	EventSnapshot
	EventAborted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventPassStarted:
		return "started"
	case EventSnapshot:
		return "completed"
	case EventAborted:
		return "aborted"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Refresher keeps at most one usage pass in flight. Triggering a new pass
// cancels the previous one.
type Refresher struct {
	src    Snapshotter
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	current string
	closed  bool

	wg      sync.WaitGroup
	eventCh chan Event
	doneCh  chan struct{}
}

// NewRefresher creates a Refresher over src.
func NewRefresher(src Snapshotter, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Refresher{
		src:     src,
		logger:  logger,
		eventCh: make(chan Event, 100),
		doneCh:  make(chan struct{}),
	}
}

// Events returns the event channel. It is closed by Stop.
func (r *Refresher) Events() <-chan Event {
	return r.eventCh
}

// Trigger starts a new pass, superseding any pass in flight, and returns
// its ID. It returns "" after Stop.
func (r *Refresher) Trigger() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ""
	}
	if r.cancel != nil {
		r.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	r.cancel = cancel
	r.current = id

	r.wg.Add(1)
	go r.run(ctx, id)
	return id
}

// Current returns the ID of the latest pass.
func (r *Refresher) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Stop cancels the pass in flight, waits for it and closes Events.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	close(r.doneCh)
	r.mu.Unlock()

	r.wg.Wait()
	close(r.eventCh)
}

func (r *Refresher) run(ctx context.Context, id string) {
	defer r.wg.Done()

	r.emit(Event{Type: EventPassStarted, PassID: id, Time: time.Now()})
	start := time.Now()

	stats, err := r.src.ComputeSnapshot(ctx)
	ev := Event{PassID: id, Time: time.Now()}
	switch {
	case errors.Is(err, usage.ErrAborted) || (err == nil && ctx.Err() != nil):
		ev.Type = EventAborted
		ev.Err = err
		r.logger.Debug("usage pass superseded", "pass", id)
	case err != nil:
		ev.Type = EventFailed
		ev.Err = err
		r.logger.Warn("usage pass failed", "pass", id, "error", err)
	default:
		ev.Type = EventSnapshot
		ev.Stats = stats
		r.logger.Debug("usage pass finished", "pass", id, "took", time.Since(start))
	}
	r.emit(ev)
}

func (r *Refresher) emit(ev Event) {
	select {
	case r.eventCh <- ev:
	case <-r.doneCh:
	}
}
