package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/botflow/pkg/session"
	"github.com/redis/go-redis/v9"
)

// NewLocker returns a Redis backed session locker when redisURL is set, so
// several processes can share chats. Without it sessions are locked in
// memory.
func NewLocker(redisURL string, logger *slog.Logger) (session.Locker, func() error, error) {
	if redisURL == "" {
		return session.NewMemoryLocker(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	return session.NewRedisLocker(client, logger), client.Close, nil
}
