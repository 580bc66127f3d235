// Package lock implements the distributed lock every scaling-group tick
// acquires before scheduling, built on the same github.com/redis/go-redis/v9
// client the teacher uses for its cache layer (api/internal/cache), here
// repurposed from caching to coordination: SET NX PX to acquire, a Lua
// compare-and-delete to release, and a PEXPIRE heartbeat to renew the
// lease while a tick is still running.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lablup/baimgr-core/internal/logger"
)

const keyPrefix = "schedcore:lock"

// releaseScript deletes the key only if its value still matches the
// holder's token, so a lock renewed/re-acquired by someone else after our
// lease expired is never deleted out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Locker acquires and releases named distributed locks.
type Locker struct {
	client *redis.Client
	lease  time.Duration
}

// New returns a Locker backed by client, with lease as the default TTL for
// acquired locks (spec.md §5: lease must be at least 2x a scaling group's
// tick interval).
func New(client *redis.Client, lease time.Duration) *Locker {
	return &Locker{client: client, lease: lease}
}

// Lock is a held lock; call Release (or let Heartbeat's context cancel) to
// give it up.
type Lock struct {
	key   string
	token string
}

func lockKey(name string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, name)
}

// Acquire attempts to take the named lock, returning ok=false without
// error if another holder currently has it — this is the expected,
// frequent case for a per-group tick racing other manager instances, not
// an error condition.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(name), token, l.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{key: lockKey(name), token: token}, true, nil
}

// Release drops the lock if we still hold it. Releasing a lock we no
// longer hold (lease already expired and re-acquired elsewhere) is a no-op,
// not an error.
func (l *Locker) Release(ctx context.Context, lk *Lock) error {
	if lk == nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{lk.key}, lk.token).Result(); err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}
	return nil
}

// Heartbeat renews lk's lease every interval until ctx is cancelled, then
// stops. Intended to run in its own goroutine for the duration of a tick
// that may outlast the original lease.
func (l *Locker) Heartbeat(ctx context.Context, lk *Lock, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.client.PExpire(ctx, lk.key, l.lease).Err(); err != nil {
				logger.Lock().Warn().Err(err).Str("key", lk.key).Msg("failed to renew lock lease")
			}
		}
	}
}
