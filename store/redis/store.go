package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Records
// ──────────────────────────────────────────────────

// Put writes the record and moves its ID into the index set for its
// current status.
func (s *Store) Put(ctx context.Context, r *store.Record) error {
	cID := r.Client.ID.String()

	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("aegis/redis: encode record: %w", err)
	}

	args := goredis.SetArgs{}
	if r.ExpiresAt != nil {
		args.ExpireAt = *r.ExpiresAt
	}

	score := float64(r.Client.CreatedAt.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.SetArgs(ctx, recordKey(cID), data, args)
	pipe.ZAdd(ctx, indexKey, goredis.Z{Score: score, Member: cID})
	for _, st := range statuses {
		if st != r.Client.Status {
			pipe.ZRem(ctx, statusKey(st), cID)
		}
	}
	pipe.ZAdd(ctx, statusKey(r.Client.Status), goredis.Z{Score: score, Member: cID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aegis/redis: put record: %w", err)
	}
	return nil
}

// Get retrieves a record by client ID.
func (s *Store) Get(ctx context.Context, clientID id.ClientID) (*store.Record, error) {
	data, err := s.client.Get(ctx, recordKey(clientID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, &aegis.NotFoundError{Kind: "client", ID: clientID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("aegis/redis: get record: %w", err)
	}

	r, err := decode(data)
	if err != nil {
		return nil, err
	}
	if r.Expired(time.Now()) {
		return nil, &aegis.NotFoundError{Kind: "client", ID: clientID.String()}
	}
	return r, nil
}

// Delete removes the record and its index entries.
func (s *Store) Delete(ctx context.Context, clientID id.ClientID) error {
	cID := clientID.String()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, recordKey(cID))
	s.unindex(ctx, pipe, cID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aegis/redis: delete record: %w", err)
	}

	if del.Val() == 0 {
		return &aegis.NotFoundError{Kind: "client", ID: cID}
	}
	return nil
}

// List returns matching records newest first. Index entries whose record
// has expired are skipped and pruned.
func (s *Store) List(ctx context.Context, opts store.ListOpts) ([]*store.Record, int, error) {
	key := indexKey
	if opts.Status != "" {
		key = statusKey(opts.Status)
	}

	ids, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("aegis/redis: list index: %w", err)
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	keys := make([]string, len(ids))
	for i, cID := range ids {
		keys[i] = recordKey(cID)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("aegis/redis: list records: %w", err)
	}

	now := time.Now()
	recs := make([]*store.Record, 0, len(vals))
	var stale []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		r, decErr := decode([]byte(raw))
		if decErr != nil {
			return nil, 0, decErr
		}
		if r.Expired(now) {
			continue
		}
		recs = append(recs, r)
	}

	if len(stale) > 0 {
		if _, pruneErr := s.prune(ctx, stale); pruneErr != nil {
			s.logger.Warn("aegis/redis: prune index failed",
				slog.Int("stale", len(stale)),
				slog.String("error", pruneErr.Error()),
			)
		}
	}

	store.SortNewestFirst(recs)
	return store.Page(recs, opts.Offset, opts.Limit), len(recs), nil
}

// Sweep removes index entries whose record Redis has already expired.
// Record expiry itself is left to Redis.
func (s *Store) Sweep(ctx context.Context, _ time.Time) (int, error) {
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("aegis/redis: sweep index: %w", err)
	}

	var stale []string
	for _, cID := range ids {
		n, existsErr := s.client.Exists(ctx, recordKey(cID)).Result()
		if existsErr != nil {
			return 0, fmt.Errorf("aegis/redis: sweep exists: %w", existsErr)
		}
		if n == 0 {
			stale = append(stale, cID)
		}
	}
	return s.prune(ctx, stale)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) prune(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.client.TxPipeline()
	for _, cID := range ids {
		s.unindex(ctx, pipe, cID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("aegis/redis: prune index: %w", err)
	}
	return len(ids), nil
}

func (s *Store) unindex(ctx context.Context, pipe goredis.Pipeliner, cID string) {
	pipe.ZRem(ctx, indexKey, cID)
	for _, st := range statuses {
		pipe.ZRem(ctx, statusKey(st), cID)
	}
}

func decode(data []byte) (*store.Record, error) {
	var r store.Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("aegis/redis: decode record: %w", err)
	}
	return &r, nil
}
