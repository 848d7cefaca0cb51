// Package redis implements store.Store using Redis for high-throughput
// ephemeral workloads. Requests, workers, and dead letters are stored as
// Redis Hashes, orchestration aggregates as JSON strings, and events use
// Streams for subscriber notification.
//
// The caller owns the Redis client lifecycle — the store never closes it.
// Pass the client through the constructor:
//
//	import (
//	    goredis "github.com/redis/go-redis/v9"
//	    "github.com/Engineer-s-Edge/enginedge-core-sub005/store/redis"
//	)
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
