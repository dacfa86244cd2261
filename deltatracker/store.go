package deltatracker

import (
	"context"
)

// SnapshotStore provides durable storage of Snapshot records keyed by (TableID, CapturedAt).
type SnapshotStore interface {
	// GetLatest returns the snapshot with the largest CapturedAt for tableID, or nil if none exists yet.
	GetLatest(ctx context.Context, tableID string) (*Snapshot, error)

	// Put stores a snapshot, an existing snapshot with the same key is overwritten.
	Put(ctx context.Context, snapshot Snapshot) error
}

// ProvisionableSnapshotStore is implemented by stores that can create their underlying table if absent.
type ProvisionableSnapshotStore interface {
	SnapshotStore
	Provision(ctx context.Context) error
}
