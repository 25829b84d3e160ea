// Package cmd wires shared infrastructure for the quarry binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quarryhq/quarry/pkg/persistence"
	"github.com/quarryhq/quarry/pkg/persistence/file"
	"github.com/quarryhq/quarry/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence builds the persistence layer named by the database URL
// scheme. postgres:// URLs get the PostgreSQL adapter with migrations
// applied; anything else falls back to the file adapter for local use.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
