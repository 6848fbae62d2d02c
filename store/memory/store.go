// Package memory implements store.Store with in-process maps. Records are
// copied on the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store. Safe for concurrent access.
type Store struct {
	mu      sync.RWMutex
	records map[string]*store.Record
	closed  bool
	now     func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used to hide expired records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*store.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return aegis.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further calls return aegis.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Records
// ──────────────────────────────────────────────────

// Put inserts or replaces a record.
func (s *Store) Put(_ context.Context, r *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return aegis.ErrStoreClosed
	}
	s.records[r.Client.ID.String()] = clone(r)
	return nil
}

// Get returns a copy of the record for clientID.
func (s *Store) Get(_ context.Context, clientID id.ClientID) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, aegis.ErrStoreClosed
	}

	r, ok := s.records[clientID.String()]
	if !ok || r.Expired(s.now()) {
		return nil, &aegis.NotFoundError{Kind: "client", ID: clientID.String()}
	}
	return clone(r), nil
}

// Delete removes the record for clientID.
func (s *Store) Delete(_ context.Context, clientID id.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return aegis.ErrStoreClosed
	}

	key := clientID.String()
	r, ok := s.records[key]
	if !ok || r.Expired(s.now()) {
		return &aegis.NotFoundError{Kind: "client", ID: key}
	}
	delete(s.records, key)
	return nil
}

// List returns matching, unexpired records newest first.
func (s *Store) List(_ context.Context, opts store.ListOpts) ([]*store.Record, int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, 0, aegis.ErrStoreClosed
	}

	now := s.now()
	matches := make([]*store.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Expired(now) {
			continue
		}
		if opts.Status != "" && r.Client.Status != opts.Status {
			continue
		}
		matches = append(matches, r)
	}
	s.mu.RUnlock()

	store.SortNewestFirst(matches)
	total := len(matches)

	page := store.Page(matches, opts.Offset, opts.Limit)
	out := make([]*store.Record, len(page))
	for i, r := range page {
		out[i] = clone(r)
	}
	return out, total, nil
}

// Sweep deletes records that expired at or before now.
func (s *Store) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, aegis.ErrStoreClosed
	}

	n := 0
	for key, r := range s.records {
		if r.Expired(now) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(r *store.Record) *store.Record {
	cp := &store.Record{
		Client: r.Client,
		Ledger: r.Ledger.Snapshot(),
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	return cp
}
