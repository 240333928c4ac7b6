package repository

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate executes the dialect's schema files in name order. Every statement
// is idempotent, so running it on startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	dir := path.Join("migrations", string(s.dialect))
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		schema, err := migrationsFS.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
		s.logger.Info("Migration applied", "dialect", s.dialect, "file", entry.Name())
	}
	return nil
}
