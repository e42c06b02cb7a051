// Package observability provides hooks for metrics and logging.
//
// Libraries emit events through package-level hook getters; the composition
// root decides where the events go. Everything defaults to a no-op, so tests
// and one-shot CLI runs pay nothing.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := observability.NewMetrics(prometheus.NewRegistry())
//	    observability.SetCacheHooks(m)
//	    observability.SetHTTPHooks(m)
//	    observability.SetRegistryHooks(m)
//	    observability.SetRosterHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Registry().OnPageSoftFailure(ctx, pkg, url, err)
//	observability.Roster().OnReconcileComplete(ctx, project, counts, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss (absent or expired entry).
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// Registry Hooks
// =============================================================================

// RegistryHooks receives events from registry index traversal.
type RegistryHooks interface {
	// OnPageSoftFailure records a non-root page that could not be fetched.
	// Traversal continues without it.
	OnPageSoftFailure(ctx context.Context, pkg, url string, err error)

	// OnTraversalComplete records a finished traversal.
	OnTraversalComplete(ctx context.Context, pkg string, pages, failures, versions int, duration time.Duration)
}

// =============================================================================
// Roster Hooks
// =============================================================================

// RosterCounts summarizes the classification of one reconciliation pass.
type RosterCounts struct {
	New         int
	Departed    int
	Reactivated int
	Unchanged   int
}

// RosterHooks receives events from stargazer reconciliation.
type RosterHooks interface {
	// OnReconcileComplete records the outcome of a reconciliation pass.
	// err is nil on success.
	OnReconcileComplete(ctx context.Context, project string, counts RosterCounts, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnPageSoftFailure(context.Context, string, string, error) {}
func (NoopRegistryHooks) OnTraversalComplete(context.Context, string, int, int, int, time.Duration) {
}

// NoopRosterHooks is a no-op implementation of RosterHooks.
type NoopRosterHooks struct{}

func (NoopRosterHooks) OnReconcileComplete(context.Context, string, RosterCounts, time.Duration, error) {
}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	registryHooks RegistryHooks = NoopRegistryHooks{}
	rosterHooks   RosterHooks   = NoopRosterHooks{}
	hooksMu       sync.RWMutex
)

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// SetRegistryHooks registers custom registry traversal hooks.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// SetRosterHooks registers custom reconciliation hooks.
func SetRosterHooks(h RosterHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		rosterHooks = h
	}
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Registry returns the registered registry traversal hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Roster returns the registered reconciliation hooks.
func Roster() RosterHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return rosterHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
	registryHooks = NoopRegistryHooks{}
	rosterHooks = NoopRosterHooks{}
}
