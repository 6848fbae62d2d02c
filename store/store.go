// Package store defines the keyed persistence interface behind the process
// registry: one Record per client, holding the client and its ledger.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/xraph/aegis/client"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/ledger"
)

// Record is everything kept for one client.
type Record struct {
	Client client.Client `json:"client"`
	Ledger ledger.Ledger `json:"ledger"`

	// ExpiresAt is set once the run is terminal. Expired records are no
	// longer returned and are removed by Sweep.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether r has expired at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ListOpts filters and pages List results.
type ListOpts struct {
	// Status, when set, keeps only clients in that status.
	Status client.Status

	// Limit caps the number of records returned. Zero means no cap.
	Limit int

	// Offset skips that many matching records.
	Offset int
}

// Store persists records by client ID. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put inserts or replaces the record for r.Client.ID.
	Put(ctx context.Context, r *Record) error

	// Get returns the record for clientID, or an *aegis.NotFoundError.
	Get(ctx context.Context, clientID id.ClientID) (*Record, error)

	// Delete removes the record for clientID, or returns an
	// *aegis.NotFoundError if there is none.
	Delete(ctx context.Context, clientID id.ClientID) error

	// List returns matching records newest first, and the total number of
	// matches before paging.
	List(ctx context.Context, opts ListOpts) ([]*Record, int, error)

	// Sweep removes records that expired at or before now and returns how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// SortNewestFirst orders records by client creation time, newest first,
// breaking ties by ID.
func SortNewestFirst(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Client, recs[j].Client
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
}

// Page applies offset and limit to recs.
func Page(recs []*Record, offset, limit int) []*Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return nil
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}
