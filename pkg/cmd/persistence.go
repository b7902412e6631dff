package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/persistence/file"
	"github.com/dukex/botflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by the URL scheme. URLs without a
// known scheme are treated as a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		if rest == "" {
			return nil, fmt.Errorf("database url %q names no directory", databaseURL)
		}

		return file.NewPersistence(rest), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, rest
		}
	}

	return "file", databaseURL
}
