package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockFailed = errors.New("could not acquire settlement lock")

// Compare-and-delete so a holder whose lease expired never releases a lock
// that somebody else has since taken.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DistributedLock is a single Redis key held with SET NX and a lease.
type DistributedLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewDistributedLock gives every holder a fresh random token, so two holders
// of the same key can never release each other's lease.
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{client: client, key: key, token: uuid.NewString(), ttl: ttl}
}

// NewWalletLock serializes settlements touching one user's wallet across
// every instance of the service.
func NewWalletLock(client *redis.Client, userID uuid.UUID, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(client, "carbon:lock:wallet:"+userID.String(), ttl)
}

func (l *DistributedLock) Key() string {
	return l.key
}

func (l *DistributedLock) Token() string {
	return l.token
}

func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Lock retries TryLock every retryInterval until it succeeds, maxRetries is
// exhausted or ctx is done.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock reports whether this holder still owned the key when releasing it.
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
