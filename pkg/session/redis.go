package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL      = 30 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares session locks between processes. A lock expires after
// its TTL so a crashed holder cannot block a chat forever; a live holder
// renews it every third of the TTL until it unlocks.
type RedisLocker struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

type RedisOption func(*RedisLocker)

func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.poll = d }
}

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

func NewRedisLocker(client redis.UniversalClient, logger *slog.Logger, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		logger: logger.With("module", "session_locker"),
		prefix: "botflow:session:",
		ttl:    DefaultLockTTL,
		poll:   DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to acquire session lock %s: %w", key, err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	go l.renew(context.WithoutCancel(ctx), key, redisKey, token, stop, done)

	var once sync.Once

	return func() {
		once.Do(func() {
			close(stop)
			<-done

			err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err()
			if err != nil {
				l.logger.Error("failed to release session lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) renew(ctx context.Context, key, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		held, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			l.logger.Warn("failed to renew session lock", "key", key, "error", err)
			continue
		}

		if held == 0 {
			l.logger.Warn("session lock lost before unlock", "key", key)
			return
		}
	}
}
