// Package store defines the keyed persistence interface used by the engine's
// process registry.
//
// A [Store] maps client IDs to a [Record] holding the client and a snapshot
// of its ledger. The engine writes a record after every ledger transition
// and sets ExpiresAt once the run is terminal, so finished onboardings are
// evicted after the configured TTL.
//
// # Available Backends
//
//   - store/memory: in-process maps, for development and tests
//   - store/redis: Redis via go-redis, using native key expiry
//   - store/postgres: PostgreSQL via pgx/v5, one JSONB row per client
//
// # Usage
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(rdb)
//	if err := s.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.New(handlers, engine.WithStore(s))
package store
