package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "stats")
	c.OnCacheMiss(ctx, "stats")
	c.OnCacheSet(ctx, "stats", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "api.nuget.org", "/v3/registration5-gz-semver2/ivy/index.json")
	h.OnResponse(ctx, "GET", "api.nuget.org", "/v3/registration5-gz-semver2/ivy/index.json", 200, time.Second)
	h.OnError(ctx, "GET", "api.nuget.org", "/v3/query", nil)

	r := NoopRegistryHooks{}
	r.OnPageSoftFailure(ctx, "Ivy", "https://example.com/page/1.json", errors.New("timeout"))
	r.OnTraversalComplete(ctx, "Ivy", 3, 1, 42, time.Second)

	NoopRosterHooks{}.OnReconcileComplete(ctx, "Ivy-Interactive/Ivy-Framework", RosterCounts{New: 1}, time.Second, nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}
	if _, ok := Registry().(NoopRegistryHooks); !ok {
		t.Error("Registry() should return NoopRegistryHooks by default")
	}
	if _, ok := Roster().(NoopRosterHooks); !ok {
		t.Error("Roster() should return NoopRosterHooks by default")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Reset() should restore NoopCacheHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testRosterHooks{}
	SetRosterHooks(custom)
	SetRosterHooks(nil)

	if Roster() != custom {
		t.Error("SetRosterHooks(nil) should be ignored")
	}
}

func TestMetricsRecordsEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())

	m.OnCacheHit(ctx, "stats")
	m.OnCacheHit(ctx, "stats")
	m.OnCacheMiss(ctx, "stats")
	if got := testutil.ToFloat64(m.CacheEvents.WithLabelValues("hit", "stats")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}

	m.OnResponse(ctx, "GET", "api.nuget.org", "/x", 200, 10*time.Millisecond)
	m.OnError(ctx, "GET", "api.nuget.org", "/x", errors.New("reset"))
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("api.nuget.org", "200")); got != 1 {
		t.Errorf("200 responses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("api.nuget.org", "error")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}

	m.OnPageSoftFailure(ctx, "Ivy", "u", errors.New("boom"))
	if got := testutil.ToFloat64(m.RegistrySoftFails); got != 1 {
		t.Errorf("soft failures = %v, want 1", got)
	}

	m.OnReconcileComplete(ctx, "o/r", RosterCounts{New: 2, Departed: 1}, time.Second, nil)
	m.OnReconcileComplete(ctx, "o/r", RosterCounts{}, time.Second, errors.New("down"))
	if got := testutil.ToFloat64(m.RosterChanges.WithLabelValues("new")); got != 2 {
		t.Errorf("new = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.OnCacheMiss(context.Background(), "stats")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pkgpulse_cache_events_total{event="miss",type="stats"} 1`) {
		t.Errorf("metrics output missing cache miss counter:\n%s", body)
	}
}

// Test implementations
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
type testRosterHooks struct{ NoopRosterHooks }
