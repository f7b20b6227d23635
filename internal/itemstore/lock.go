package itemstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
)

const lockPrefix = "image-collector:lock:item:"

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds item locks in Redis so that workers in different
// processes never collect the same item at once.
type RedisLocker struct {
	client   *redis.Client
	newToken func() string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, newToken: uuid.NewString}
}

func (l *RedisLocker) Acquire(ctx context.Context, key models.ItemKey, ttl time.Duration) (Release, error) {
	redisKey := lockPrefix + key.String()
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewItemBusyError(key.String())
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	}, nil
}

// MemoryLocker is the single-process Locker. Locks do not expire.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[models.ItemKey]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[models.ItemKey]struct{}{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, key models.ItemKey, _ time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, apperrors.NewItemBusyError(key.String())
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
