// Package postgres stores roster state and download snapshots in PostgreSQL.
//
// [Store] implements [roster.Store] for the reconciler and
// [daily.SnapshotSource] for the aggregates, plus the read queries behind
// the HTTP API. Bulk writes pass username lists as arrays so every
// reconciliation step is a single statement.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lib/pq"

	"github.com/matzehuels/pkgpulse/pkg/daily"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

// Store is a PostgreSQL-backed store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

var (
	_ roster.Store         = (*Store)(nil)
	_ daily.SnapshotSource = (*Store)(nil)
)

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "connect to database")
	}
	return New(db, logger), nil
}

// New wraps an open database handle.
func New(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{db: db, logger: logger}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Roster writes
// =============================================================================

func (s *Store) ActiveUsernames(ctx context.Context, project string) ([]string, error) {
	return s.usernames(ctx, `SELECT user_login FROM github_stargazers
		WHERE repo_name = $1 AND unstarred_at IS NULL`, project)
}

func (s *Store) DepartedUsernames(ctx context.Context, project string) ([]string, error) {
	return s.usernames(ctx, `SELECT user_login FROM github_stargazers
		WHERE repo_name = $1 AND unstarred_at IS NOT NULL`, project)
}

func (s *Store) usernames(ctx context.Context, query, project string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) InsertNew(ctx context.Context, project string, accounts []roster.Stargazer) error {
	logins := make([]string, len(accounts))
	starred := make([]sql.NullTime, len(accounts))
	for i, a := range accounts {
		logins[i] = a.Username
		if a.StarredAt != nil {
			starred[i] = sql.NullTime{Time: *a.StarredAt, Valid: true}
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_stargazers (repo_name, user_login, starred_at, unstarred_at)
		SELECT $1, unnest($2::text[]), unnest($3::timestamptz[]), NULL
		ON CONFLICT (repo_name, user_login) DO NOTHING`,
		project, pq.Array(logins), pq.Array(starred))
	return err
}

func (s *Store) Reactivate(ctx context.Context, project string, usernames []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE github_stargazers SET unstarred_at = NULL
		WHERE repo_name = $1 AND user_login = ANY($2) AND unstarred_at IS NOT NULL`,
		project, pq.Array(usernames))
	return err
}

func (s *Store) MarkDeparted(ctx context.Context, project string, usernames []string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE github_stargazers SET unstarred_at = $3
		WHERE repo_name = $1 AND user_login = ANY($2) AND unstarred_at IS NULL`,
		project, pq.Array(usernames), at.UTC())
	return err
}

func (s *Store) UpsertDailyStats(ctx context.Context, project string, stats roster.DailyStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_stargazers_daily (repo_name, date, new_count, unstar_count, reactivated_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (repo_name, date) DO UPDATE SET
			new_count = EXCLUDED.new_count,
			unstar_count = EXCLUDED.unstar_count,
			reactivated_count = EXCLUDED.reactivated_count`,
		project, stats.Date, stats.New, stats.Unstarred, stats.Reactivated)
	return err
}

// =============================================================================
// Roster reads
// =============================================================================

// Accounts lists every account ever seen for project, most recent star first.
func (s *Store) Accounts(ctx context.Context, project string) ([]roster.Account, error) {
	return s.accounts(ctx, `SELECT user_login, starred_at, unstarred_at FROM github_stargazers
		WHERE repo_name = $1 ORDER BY starred_at DESC NULLS LAST, user_login`, project)
}

// Starred lists active accounts, most recent star first.
func (s *Store) Starred(ctx context.Context, project string) ([]roster.Account, error) {
	return s.accounts(ctx, `SELECT user_login, starred_at, unstarred_at FROM github_stargazers
		WHERE repo_name = $1 AND unstarred_at IS NULL ORDER BY starred_at DESC NULLS LAST, user_login`, project)
}

// Unstarred lists departed accounts, most recent departure first.
func (s *Store) Unstarred(ctx context.Context, project string) ([]roster.Account, error) {
	return s.accounts(ctx, `SELECT user_login, starred_at, unstarred_at FROM github_stargazers
		WHERE repo_name = $1 AND unstarred_at IS NOT NULL ORDER BY unstarred_at DESC, user_login`, project)
}

func (s *Store) accounts(ctx context.Context, query, project string) ([]roster.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, project)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list accounts for %s", project)
	}
	defer rows.Close()

	var out []roster.Account
	for rows.Next() {
		var (
			a                  roster.Account
			starred, unstarred sql.NullTime
		)
		if err := rows.Scan(&a.Username, &starred, &unstarred); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorage, err, "scan account")
		}
		a.StarredAt = nullTime(starred)
		a.UnstarredAt = nullTime(unstarred)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list accounts for %s", project)
	}
	return out, nil
}

// Summary counts accounts of project by state.
func (s *Store) Summary(ctx context.Context, project string) (roster.Summary, error) {
	var sum roster.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE unstarred_at IS NULL),
			COUNT(*) FILTER (WHERE unstarred_at IS NOT NULL),
			COUNT(*)
		FROM github_stargazers WHERE repo_name = $1`, project).
		Scan(&sum.Starred, &sum.Unstarred, &sum.TotalEver)
	if err != nil {
		return roster.Summary{}, errors.Wrap(errors.ErrCodeStorage, err, "summarize %s", project)
	}
	return sum, nil
}

// RosterDaily returns up to days rows of daily reconciliation counts, newest
// first.
func (s *Store) RosterDaily(ctx context.Context, project string, days int) ([]roster.DailyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, new_count, unstar_count, reactivated_count
		FROM github_stargazers_daily WHERE repo_name = $1
		ORDER BY date DESC LIMIT $2`, project, days)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "roster daily for %s", project)
	}
	defer rows.Close()

	var out []roster.DailyStats
	for rows.Next() {
		var d roster.DailyStats
		if err := rows.Scan(&d.Date, &d.New, &d.Unstarred, &d.Reactivated); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorage, err, "scan roster daily")
		}
		d.Date = daily.Day(d.Date)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "roster daily for %s", project)
	}
	return out, nil
}

// StarHistory reconstructs the star count at the end of each of the last
// days days, ending yesterday (UTC). An account counts on day d when it
// starred on or before d and had not left by d.
func (s *Store) StarHistory(ctx context.Context, project string, days int) ([]daily.Snapshot, error) {
	return s.snapshots(ctx, "star history", `
		SELECT d::date, COUNT(s.user_login)
		FROM generate_series(CURRENT_DATE - $2::int, CURRENT_DATE - 1, INTERVAL '1 day') AS d
		LEFT JOIN github_stargazers s
			ON s.repo_name = $1
			AND (s.starred_at AT TIME ZONE 'UTC')::date <= d::date
			AND (s.unstarred_at IS NULL OR (s.unstarred_at AT TIME ZONE 'UTC')::date > d::date)
		GROUP BY d
		ORDER BY d`, false, project, days)
}

// =============================================================================
// Download snapshots
// =============================================================================

// UpsertDownloads records the cumulative download count of pkg for date.
func (s *Store) UpsertDownloads(ctx context.Context, pkg string, date time.Time, total int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nuget_history (package_id, date, downloads)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_id, date) DO UPDATE SET downloads = EXCLUDED.downloads`,
		packageKey(pkg), daily.Day(date), total)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "record downloads for %s", pkg)
	}
	return nil
}

// DownloadHistory returns the last days snapshots recorded for pkg in
// ascending date order. Missing days are not filled.
func (s *Store) DownloadHistory(ctx context.Context, pkg string, days int) ([]daily.Snapshot, error) {
	return s.snapshots(ctx, "download history", `
		SELECT date, downloads FROM nuget_history
		WHERE package_id = $1
		ORDER BY date DESC LIMIT $2`, true, packageKey(pkg), days)
}

func (s *Store) snapshots(ctx context.Context, what, query string, newestFirst bool, args ...any) ([]daily.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "%s", what)
	}
	defer rows.Close()

	var out []daily.Snapshot
	for rows.Next() {
		var snap daily.Snapshot
		if err := rows.Scan(&snap.Date, &snap.Total); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorage, err, "scan %s", what)
		}
		snap.Date = daily.Day(snap.Date)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "%s", what)
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func packageKey(pkg string) string {
	return strings.ToLower(strings.TrimSpace(pkg))
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
