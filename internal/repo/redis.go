package repo

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct{ C *redis.Client }

func NewRedis(addr string) *Redis {
	return &Redis{C: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }

// SeenEvent marks an event id as processed and reports whether it had
// been seen already. SETNX keeps this race-free across replicas; the TTL
// only needs to outlive the verifier's replay window.
func (r *Redis) SeenEvent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := r.C.SetNX(ctx, "webhook:event:"+id, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
