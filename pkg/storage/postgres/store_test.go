package postgres

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

const project = "Ivy-Interactive/Ivy-Framework"

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db, nil), mock
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS github_stargazers ").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS github_stargazers_active_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS github_stargazers_daily").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS nuget_history").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
}

func TestMigrateError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE").WillReturnError(stderrors.New("permission denied"))

	err := s.Migrate(context.Background())
	if !errors.Is(err, errors.ErrCodeStorage) {
		t.Errorf("error = %v, want STORAGE", err)
	}
}

func TestActiveAndDepartedUsernames(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT user_login FROM github_stargazers WHERE repo_name = \\$1 AND unstarred_at IS NULL").
		WithArgs(project).
		WillReturnRows(sqlmock.NewRows([]string{"user_login"}).AddRow("alice").AddRow("bob"))
	mock.ExpectQuery("unstarred_at IS NOT NULL").
		WithArgs(project).
		WillReturnRows(sqlmock.NewRows([]string{"user_login"}).AddRow("carol"))

	active, err := s.ActiveUsernames(context.Background(), project)
	if err != nil || len(active) != 2 || active[1] != "bob" {
		t.Errorf("ActiveUsernames() = %v, %v", active, err)
	}
	departed, err := s.DepartedUsernames(context.Background(), project)
	if err != nil || len(departed) != 1 || departed[0] != "carol" {
		t.Errorf("DepartedUsernames() = %v, %v", departed, err)
	}
}

func TestInsertNew(t *testing.T) {
	s, mock := newMock(t)
	starred := ts("2025-01-02T10:00:00Z")
	mock.ExpectExec("INSERT INTO github_stargazers .+ unnest.+ ON CONFLICT \\(repo_name, user_login\\) DO NOTHING").
		WithArgs(project, pq.Array([]string{"dave", "erin"}), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := s.InsertNew(context.Background(), project, []roster.Stargazer{
		{Username: "dave", StarredAt: &starred},
		{Username: "erin"},
	})
	if err != nil {
		t.Fatalf("InsertNew() error: %v", err)
	}
}

func TestReactivateAndMarkDeparted(t *testing.T) {
	s, mock := newMock(t)
	at := ts("2025-03-10T14:30:00Z")
	mock.ExpectExec("UPDATE github_stargazers SET unstarred_at = NULL .+ unstarred_at IS NOT NULL").
		WithArgs(project, pq.Array([]string{"alice"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE github_stargazers SET unstarred_at = \\$3 .+ unstarred_at IS NULL").
		WithArgs(project, pq.Array([]string{"bob", "carol"}), at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	if err := s.Reactivate(ctx, project, []string{"alice"}); err != nil {
		t.Fatalf("Reactivate() error: %v", err)
	}
	if err := s.MarkDeparted(ctx, project, []string{"bob", "carol"}, at); err != nil {
		t.Fatalf("MarkDeparted() error: %v", err)
	}
}

func TestUpsertDailyStats(t *testing.T) {
	s, mock := newMock(t)
	date := ts("2025-03-10T00:00:00Z")
	mock.ExpectExec("INSERT INTO github_stargazers_daily .+ ON CONFLICT \\(repo_name, date\\) DO UPDATE").
		WithArgs(project, date, 3, 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertDailyStats(context.Background(), project, roster.DailyStats{Date: date, New: 3, Unstarred: 1, Reactivated: 2})
	if err != nil {
		t.Fatalf("UpsertDailyStats() error: %v", err)
	}
}

func TestStarredAndUnstarred(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("unstarred_at IS NULL ORDER BY starred_at DESC").
		WithArgs(project).
		WillReturnRows(sqlmock.NewRows([]string{"user_login", "starred_at", "unstarred_at"}).
			AddRow("alice", ts("2025-02-01T00:00:00Z"), nil).
			AddRow("bob", nil, nil))
	mock.ExpectQuery("unstarred_at IS NOT NULL ORDER BY unstarred_at DESC").
		WithArgs(project).
		WillReturnRows(sqlmock.NewRows([]string{"user_login", "starred_at", "unstarred_at"}).
			AddRow("carol", ts("2024-01-01T00:00:00Z"), ts("2025-01-01T00:00:00Z")))

	ctx := context.Background()
	starred, err := s.Starred(ctx, project)
	if err != nil {
		t.Fatalf("Starred() error: %v", err)
	}
	if len(starred) != 2 || starred[0].StarredAt == nil || starred[1].StarredAt != nil || !starred[0].IsActive() {
		t.Errorf("Starred() = %+v", starred)
	}
	unstarred, err := s.Unstarred(ctx, project)
	if err != nil {
		t.Fatalf("Unstarred() error: %v", err)
	}
	if len(unstarred) != 1 || unstarred[0].IsActive() {
		t.Errorf("Unstarred() = %+v", unstarred)
	}
}

func TestAccountsError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT user_login, starred_at, unstarred_at").WillReturnError(stderrors.New("boom"))

	_, err := s.Accounts(context.Background(), project)
	if !errors.Is(err, errors.ErrCodeStorage) {
		t.Errorf("error = %v, want STORAGE", err)
	}
}

func TestSummary(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").
		WithArgs(project).
		WillReturnRows(sqlmock.NewRows([]string{"starred", "unstarred", "total"}).AddRow(40, 2, 42))

	sum, err := s.Summary(context.Background(), project)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if sum != (roster.Summary{Starred: 40, Unstarred: 2, TotalEver: 42}) {
		t.Errorf("Summary() = %+v", sum)
	}
}

func TestRosterDaily(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("FROM github_stargazers_daily .+ ORDER BY date DESC LIMIT \\$2").
		WithArgs(project, 7).
		WillReturnRows(sqlmock.NewRows([]string{"date", "new_count", "unstar_count", "reactivated_count"}).
			AddRow(ts("2025-03-10T00:00:00Z"), 3, 1, 0).
			AddRow(ts("2025-03-09T00:00:00Z"), 0, 0, 1))

	got, err := s.RosterDaily(context.Background(), project, 7)
	if err != nil {
		t.Fatalf("RosterDaily() error: %v", err)
	}
	if len(got) != 2 || got[0].New != 3 || got[1].Reactivated != 1 {
		t.Errorf("RosterDaily() = %+v", got)
	}
}

func TestStarHistory(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("generate_series\\(CURRENT_DATE - \\$2::int, CURRENT_DATE - 1").
		WithArgs(project, 3).
		WillReturnRows(sqlmock.NewRows([]string{"date", "count"}).
			AddRow(ts("2025-03-07T00:00:00Z"), 10).
			AddRow(ts("2025-03-08T00:00:00Z"), 12).
			AddRow(ts("2025-03-09T00:00:00Z"), 11))

	got, err := s.StarHistory(context.Background(), project, 3)
	if err != nil {
		t.Fatalf("StarHistory() error: %v", err)
	}
	if len(got) != 3 || got[0].Total != 10 || got[2].Total != 11 {
		t.Errorf("StarHistory() = %+v", got)
	}
}

func TestDownloads(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("INSERT INTO nuget_history .+ ON CONFLICT \\(package_id, date\\) DO UPDATE").
		WithArgs("ivy", ts("2025-03-10T00:00:00Z"), int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT date, downloads FROM nuget_history .+ ORDER BY date DESC LIMIT \\$2").
		WithArgs("ivy", 30).
		WillReturnRows(sqlmock.NewRows([]string{"date", "downloads"}).
			AddRow(ts("2025-03-10T00:00:00Z"), int64(5000)).
			AddRow(ts("2025-03-09T00:00:00Z"), int64(4900)))

	ctx := context.Background()
	if err := s.UpsertDownloads(ctx, "Ivy", ts("2025-03-10T18:45:00Z"), 5000); err != nil {
		t.Fatalf("UpsertDownloads() error: %v", err)
	}
	got, err := s.DownloadHistory(ctx, "Ivy", 30)
	if err != nil {
		t.Fatalf("DownloadHistory() error: %v", err)
	}
	if len(got) != 2 || got[0].Total != 4900 || got[1].Total != 5000 {
		t.Errorf("DownloadHistory() = %+v, want ascending", got)
	}
}
