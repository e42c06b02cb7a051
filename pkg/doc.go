// Package pkg holds the pkgpulse libraries.
//
// # Overview
//
// pkgpulse tracks two signals for an open-source project: NuGet download
// counts of its package and the stargazer roster of its GitHub repository.
// The libraries are organized by concern:
//
//  1. [registry], [packagestats] - walk the paginated registry index and merge
//     per-version download counts into cached package statistics
//  2. [roster] - reconcile the stored stargazer roster with a fresh fetch
//  3. [daily] - turn cumulative daily snapshots into growth figures
//  4. [integrations] - NuGet and GitHub wire clients
//  5. [storage/postgres], [cache] - persistence
//  6. [api], [schedule] - read-only HTTP endpoints and cron jobs
//
// # Data flow
//
//	NuGet registration index ──► registry.Paginator ──► packagestats.Provider ──► cache
//	                                                             │
//	                                              snapshot ──────┴──► nuget_history
//
//	GitHub stargazers ──► roster.Reconciler ──► github_stargazers, github_stargazers_daily
//
//	nuget_history / github_stargazers ──► daily.Deltas ──► api, CLI
//
// Cross-cutting: [errors] carries machine-readable codes, [observability]
// exposes hooks with a Prometheus implementation, [config] loads settings.
package pkg
