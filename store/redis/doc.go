// Package redis implements store.Store using Redis via go-redis.
//
// Each record is encoded with msgpack and stored under its own key
// (aegis:client:{id}). Once a run is terminal the record carries a native
// Redis expiry, so finished onboardings disappear without a background job.
// Sorted Sets scored by creation time index every client (aegis:clients)
// and each status (aegis:clients:{status}) for newest-first listing. Index
// entries left behind by expired records are pruned by List and Sweep.
//
// The caller owns the Redis client lifecycle; Close never closes it.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
