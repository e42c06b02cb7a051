package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/pkgpulse/pkg/daily"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accountDTO keeps null timestamps in the output.
type accountDTO struct {
	Username    string     `json:"username"`
	StarredAt   *time.Time `json:"starred_at"`
	UnstarredAt *time.Time `json:"unstarred_at"`
}

func toDTOs(accounts []roster.Account) []accountDTO {
	out := make([]accountDTO, len(accounts))
	for i, a := range accounts {
		out[i] = accountDTO{Username: a.Username, StarredAt: a.StarredAt, UnstarredAt: a.UnstarredAt}
	}
	return out
}

func (s *Server) starred(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.Starred(r.Context(), s.project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(accounts))
}

func (s *Server) unstarred(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.Unstarred(r.Context(), s.project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(accounts))
}

func (s *Server) starCount(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.Summary(r.Context(), s.project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type seriesResponse struct {
	Deltas  []daily.Delta `json:"deltas"`
	Summary daily.Summary `json:"summary"`
}

func (s *Server) starDaily(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// One extra snapshot provides the baseline for the oldest delta.
	snaps, err := s.store.StarHistory(r.Context(), s.project, days+1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.series(snaps))
}

func (s *Server) series(snaps []daily.Snapshot) seriesResponse {
	deltas := daily.Deltas(snaps, daily.NewestFirst)
	if deltas == nil {
		deltas = []daily.Delta{}
	}
	return seriesResponse{Deltas: deltas, Summary: daily.Summarize(deltas, s.now())}
}

func (s *Server) rosterEvents(w http.ResponseWriter, r *http.Request) {
	from, err := timeParam(r, "from", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := timeParam(r, "to", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	accounts, err := s.store.Accounts(r.Context(), s.project)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events := roster.Events(accounts, from, to)
	if events == nil {
		events = []roster.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) rosterDaily(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.store.RosterDaily(r.Context(), s.project, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []roster.DailyStats{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) packageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Statistics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) downloadDaily(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snaps, err := s.downloadHistory(r, days+1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.series(snaps).Deltas)
}

func (s *Server) downloadSummary(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snaps, err := s.downloadHistory(r, days+1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.series(snaps).Summary)
}

func (s *Server) downloadHistory(r *http.Request, days int) ([]daily.Snapshot, error) {
	pkg := r.URL.Query().Get("package")
	if pkg == "" {
		pkg = s.pkg
	}
	if err := errors.ValidateNuGetPackageID(pkg); err != nil {
		return nil, err
	}
	return s.store.DownloadHistory(r.Context(), pkg, days)
}

func daysParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return defaultDays, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "days must be an integer, got %q", v)
	}
	if err := errors.ValidateDays(days, maxDays); err != nil {
		return 0, err
	}
	return days, nil
}

// timeParam parses an RFC 3339 timestamp or a YYYY-MM-DD date. A date used
// as an upper bound covers the whole day.
func timeParam(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeInvalidInput, "%s must be YYYY-MM-DD or RFC 3339, got %q", name, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
