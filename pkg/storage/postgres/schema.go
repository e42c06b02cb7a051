package postgres

import (
	"context"

	"github.com/matzehuels/pkgpulse/pkg/errors"
)

// schema is applied statement by statement. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS github_stargazers (
		id           BIGSERIAL PRIMARY KEY,
		repo_name    TEXT NOT NULL,
		user_login   TEXT NOT NULL,
		starred_at   TIMESTAMPTZ,
		unstarred_at TIMESTAMPTZ,
		UNIQUE (repo_name, user_login)
	)`,
	`CREATE INDEX IF NOT EXISTS github_stargazers_active_idx
		ON github_stargazers (repo_name) WHERE unstarred_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS github_stargazers_daily (
		id                BIGSERIAL PRIMARY KEY,
		repo_name         TEXT NOT NULL,
		date              DATE NOT NULL,
		new_count         INTEGER NOT NULL DEFAULT 0,
		unstar_count      INTEGER NOT NULL DEFAULT 0,
		reactivated_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (repo_name, date)
	)`,
	`CREATE TABLE IF NOT EXISTS nuget_history (
		id         BIGSERIAL PRIMARY KEY,
		package_id TEXT NOT NULL,
		date       DATE NOT NULL,
		downloads  BIGINT NOT NULL,
		UNIQUE (package_id, date)
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "migrate")
		}
	}
	s.logger.Debug("schema up to date", "statements", len(schema))
	return nil
}
