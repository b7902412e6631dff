package session_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/botflow/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Redis test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestRedisLocker_SerializesSameKey(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	locker := session.NewRedisLocker(client, logger, session.WithPollInterval(5*time.Millisecond))

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(t.Context(), session.Key("project-1", "chat-1"))
			if !assert.NoError(t, err) {
				return
			}

			if inside.Add(1) > 1 {
				overlap.Store(true)
			}

			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}

	wg.Wait()

	assert.False(t, overlap.Load())

	exists, err := client.Exists(t.Context(), "botflow:session:project-1:chat-1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisLocker_LostLockIsNotTouchedByOldHolder(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	locker := session.NewRedisLocker(client, logger,
		session.WithTTL(150*time.Millisecond),
		session.WithPollInterval(5*time.Millisecond),
		session.WithPrefix("test:"),
	)

	stale, err := locker.Lock(t.Context(), "k")
	require.NoError(t, err)

	// The key vanishing is what an expiry looks like to the holder.
	require.NoError(t, client.Del(t.Context(), "test:k").Err())

	fresh, err := locker.Lock(t.Context(), "k")
	require.NoError(t, err)

	token, err := client.Get(t.Context(), "test:k").Result()
	require.NoError(t, err)

	// Long enough for the old holder's renewer to tick.
	time.Sleep(120 * time.Millisecond)
	stale()

	current, err := client.Get(t.Context(), "test:k").Result()
	require.NoError(t, err)
	assert.Equal(t, token, current)

	fresh()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	held, err := locker.Lock(t.Context(), "k")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	held()
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	locker := session.NewRedisLocker(client, logger,
		session.WithTTL(90*time.Millisecond),
		session.WithPollInterval(5*time.Millisecond),
		session.WithPrefix("renew:"),
	)

	unlock, err := locker.Lock(t.Context(), "k")
	require.NoError(t, err)

	// Several TTLs pass while the holder is still working.
	time.Sleep(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ttl, err := client.PTTL(t.Context(), "renew:k").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	unlock()

	exists, err := client.Exists(t.Context(), "renew:k").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
