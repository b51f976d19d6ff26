package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "booking_sweep:leader"

// Lock is a Redis SetNX leader lock so only one service instance runs the
// expiry sweep at a time. The TTL bounds how long a crashed leader blocks
// the next sweep.
type Lock struct {
	Client *redis.Client
	Owner  string
	TTL    time.Duration
}

func NewLock(client *redis.Client, owner string, ttl time.Duration) *Lock {
	return &Lock{Client: client, Owner: owner, TTL: ttl}
}

func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.Client.SetNX(ctx, leaderKey, l.Owner, l.TTL).Result()
}

// Release deletes the lock only if this instance still owns it; a lock that
// expired and was re-acquired elsewhere is left alone.
func (l *Lock) Release(ctx context.Context) error {
	val, err := l.Client.Get(ctx, leaderKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val == l.Owner {
		_, err := l.Client.Del(ctx, leaderKey).Result()
		return err
	}
	return nil
}
