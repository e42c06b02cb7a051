package daily

import "context"

// SnapshotSource reads cumulative histories. Both methods return the last
// days snapshots in ascending date order.
type SnapshotSource interface {
	DownloadHistory(ctx context.Context, pkg string, days int) ([]Snapshot, error)
	StarHistory(ctx context.Context, project string, days int) ([]Snapshot, error)
}
