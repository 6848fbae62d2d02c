package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
	"github.com/xraph/aegis/sequencer"
	"github.com/xraph/aegis/store"
)

// Registry tracks the onboarding process of every client: live run handles
// in memory and client records in a store.Store. Terminal records expire
// after the configured TTL and are evicted by the reaper.
type Registry struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	runs    map[string]*sequencer.Run
	deleted map[string]struct{}
	wg      sync.WaitGroup

	reaperOnce sync.Once
	stopReaper chan struct{}
	reaperDone chan struct{}
}

// NewRegistry creates a Registry over s. A zero ttl keeps terminal records
// until they are deleted.
func NewRegistry(s store.Store, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:      s,
		ttl:        ttl,
		logger:     logger,
		clock:      func() time.Time { return time.Now().UTC() },
		runs:       make(map[string]*sequencer.Run),
		deleted:    make(map[string]struct{}),
		stopReaper: make(chan struct{}),
	}
}

// Store returns the backing store.
func (r *Registry) Store() store.Store { return r.store }

// ──────────────────────────────────────────────────
// Run handles
// ──────────────────────────────────────────────────

// Track registers a live run. The handle is dropped once the run is done.
func (r *Registry) Track(run *sequencer.Run) {
	key := run.Client().ID.String()

	r.mu.Lock()
	r.runs[key] = run
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-run.Done()

		r.mu.Lock()
		if r.runs[key] == run {
			delete(r.runs, key)
		}
		delete(r.deleted, key)
		r.mu.Unlock()
	}()
}

// Run returns the live run for clientID, if any. A run that has finished
// is not live even if its handle has not been dropped yet.
func (r *Registry) Run(clientID id.ClientID) (*sequencer.Run, bool) {
	r.mu.RLock()
	run, ok := r.runs[clientID.String()]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	select {
	case <-run.Done():
		return nil, false
	default:
		return run, true
	}
}

// Runs returns every live run.
func (r *Registry) Runs() []*sequencer.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*sequencer.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out
}

// Forget drops the live run for clientID and suppresses any further
// persistence of it. It returns the dropped run, if there was one.
func (r *Registry) Forget(clientID id.ClientID) (*sequencer.Run, bool) {
	key := clientID.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[key]
	if ok {
		delete(r.runs, key)
		r.deleted[key] = struct{}{}
	}
	return run, ok
}

// Wait blocks until every tracked run is done or ctx expires.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────

// Persist writes the client and snapshot to the store. It is installed as
// the sequencer observer, so it runs after every ledger transition.
func (r *Registry) Persist(ctx context.Context, c *client.Client, snap ledger.Ledger) {
	rec := &store.Record{
		Client: clientFor(c, snap),
		Ledger: snap,
	}
	if snap.Terminal() && r.ttl > 0 {
		at := r.clock()
		if snap.CompletedAt != nil {
			at = *snap.CompletedAt
		}
		exp := at.Add(r.ttl)
		rec.ExpiresAt = &exp
	}

	// Put runs under the read lock so a forgotten client is never written back.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, gone := r.deleted[c.ID.String()]; gone {
		return
	}

	if err := r.store.Put(ctx, rec); err != nil {
		r.logger.Warn("persist ledger failed",
			slog.String("client_id", c.ID.String()),
			slog.String("status", string(snap.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// clientFor returns c carrying the status of snap.
func clientFor(c *client.Client, snap ledger.Ledger) client.Client {
	out := *c
	out.Status = snap.Status
	out.UpdatedAt = snap.UpdatedAt
	return out
}

// ──────────────────────────────────────────────────
// Reaper
// ──────────────────────────────────────────────────

// StartReaper sweeps expired records every interval until StopReaper.
// A non-positive interval disables the reaper.
func (r *Registry) StartReaper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.reaperDone = make(chan struct{})

	go func() {
		defer close(r.reaperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopReaper:
				return
			case <-ticker.C:
				r.Sweep(context.Background())
			}
		}
	}()
}

// Sweep evicts expired records once.
func (r *Registry) Sweep(ctx context.Context) int {
	n, err := r.store.Sweep(ctx, r.clock())
	if err != nil {
		r.logger.Warn("ledger sweep failed", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		r.logger.Debug("expired ledgers evicted", slog.Int("count", n))
	}
	return n
}

// StopReaper stops the reaper and waits for it to exit.
func (r *Registry) StopReaper() {
	r.reaperOnce.Do(func() {
		close(r.stopReaper)
		if r.reaperDone != nil {
			<-r.reaperDone
		}
	})
}
