package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store"
)

const recordColumns = `client, ledger, expires_at`

// Put upserts the row for r.Client.ID.
func (s *Store) Put(ctx context.Context, r *store.Record) error {
	if s.closed.Load() {
		return aegis.ErrStoreClosed
	}

	clientJSON, err := json.Marshal(r.Client)
	if err != nil {
		return fmt.Errorf("aegis/postgres: encode client: %w", err)
	}
	ledgerJSON, err := json.Marshal(r.Ledger)
	if err != nil {
		return fmt.Errorf("aegis/postgres: encode ledger: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO aegis_clients (
			client_id, status, created_at, updated_at, expires_at, client, ledger
		) VALUES ($1, $2, $3, NOW(), $4, $5, $6)
		ON CONFLICT (client_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW(),
			expires_at = EXCLUDED.expires_at,
			client = EXCLUDED.client,
			ledger = EXCLUDED.ledger`,
		r.Client.ID.String(), string(r.Client.Status), r.Client.CreatedAt,
		r.ExpiresAt, clientJSON, ledgerJSON,
	)
	if err != nil {
		return wrap("put record", err)
	}
	return nil
}

// Get retrieves the unexpired record for clientID.
func (s *Store) Get(ctx context.Context, clientID id.ClientID) (*store.Record, error) {
	if s.closed.Load() {
		return nil, aegis.ErrStoreClosed
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM aegis_clients
		WHERE client_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)`,
		clientID.String(), time.Now(),
	)

	r, err := scanRecord(row)
	if isNoRows(err) {
		return nil, &aegis.NotFoundError{Kind: "client", ID: clientID.String()}
	}
	if err != nil {
		return nil, wrap("get record", err)
	}
	return r, nil
}

// Delete removes the row for clientID. An expired row counts as absent.
func (s *Store) Delete(ctx context.Context, clientID id.ClientID) error {
	if s.closed.Load() {
		return aegis.ErrStoreClosed
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM aegis_clients
		WHERE client_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)`,
		clientID.String(), time.Now(),
	)
	if err != nil {
		return wrap("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return &aegis.NotFoundError{Kind: "client", ID: clientID.String()}
	}
	return nil
}

// List returns unexpired rows newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, opts store.ListOpts) ([]*store.Record, int, error) {
	if s.closed.Load() {
		return nil, 0, aegis.ErrStoreClosed
	}

	now := time.Now()
	status := string(opts.Status)

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM aegis_clients
		WHERE ($1::text = '' OR status = $1::text)
		  AND (expires_at IS NULL OR expires_at > $2)`,
		status, now,
	).Scan(&total)
	if err != nil {
		return nil, 0, wrap("count records", err)
	}
	if total == 0 || opts.Offset >= total {
		return nil, total, nil
	}

	// LIMIT NULL means no limit.
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	offset := max(opts.Offset, 0)

	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM aegis_clients
		WHERE ($1::text = '' OR status = $1::text)
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC, client_id DESC
		LIMIT $3 OFFSET $4`,
		status, now, limit, offset,
	)
	if err != nil {
		return nil, 0, wrap("list records", err)
	}
	defer rows.Close()

	var recs []*store.Record
	for rows.Next() {
		r, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, 0, wrap("scan record", scanErr)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrap("list records", err)
	}
	return recs, total, nil
}

// Sweep deletes rows that expired at or before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.closed.Load() {
		return 0, aegis.ErrStoreClosed
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM aegis_clients
		WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, wrap("sweep records", err)
	}
	return int(tag.RowsAffected()), nil
}

// ──────────────────────────────────────────────────
// Scanning
// ──────────────────────────────────────────────────

func scanRecord(row pgx.Row) (*store.Record, error) {
	var (
		clientJSON, ledgerJSON []byte
		expiresAt              *time.Time
	)
	if err := row.Scan(&clientJSON, &ledgerJSON, &expiresAt); err != nil {
		return nil, err
	}

	r := &store.Record{ExpiresAt: expiresAt}
	if err := json.Unmarshal(clientJSON, &r.Client); err != nil {
		return nil, fmt.Errorf("decode client: %w", err)
	}
	if err := json.Unmarshal(ledgerJSON, &r.Ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return r, nil
}
