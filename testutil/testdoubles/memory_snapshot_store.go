package testdoubles

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
)

// MemorySnapshotStore keeps snapshots in memory, keyed by (TableID, CapturedAt).
type MemorySnapshotStore struct {
	mu             sync.Mutex
	snapshots      map[string]map[int64]deltatracker.Snapshot
	getLatestErr   error
	putErr         error
	putCalls       int
	provisionCalls int
}

// NewMemorySnapshotStore creates an empty MemorySnapshotStore, optionally pre-seeded with snapshots.
func NewMemorySnapshotStore(seed ...deltatracker.Snapshot) *MemorySnapshotStore {
	s := &MemorySnapshotStore{snapshots: make(map[string]map[int64]deltatracker.Snapshot)}

	for _, snapshot := range seed {
		s.store(snapshot)
	}

	return s
}

// FailGetLatest makes GetLatest return err, nil clears it.
func (s *MemorySnapshotStore) FailGetLatest(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLatestErr = err
}

// FailPut makes Put return err, nil clears it.
func (s *MemorySnapshotStore) FailPut(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Provision implements deltatracker.ProvisionableSnapshotStore.
func (s *MemorySnapshotStore) Provision(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisionCalls++

	return nil
}

// GetLatest implements deltatracker.SnapshotStore.
func (s *MemorySnapshotStore) GetLatest(ctx context.Context, tableID string) (*deltatracker.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getLatestErr != nil {
		return nil, s.getLatestErr
	}

	var latest *deltatracker.Snapshot
	for _, snapshot := range s.snapshots[tableID] {
		if latest == nil || snapshot.CapturedAt > latest.CapturedAt {
			found := snapshot
			latest = &found
		}
	}

	return latest, nil
}

// Put implements deltatracker.SnapshotStore.
func (s *MemorySnapshotStore) Put(ctx context.Context, snapshot deltatracker.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.putCalls++

	if s.putErr != nil {
		return s.putErr
	}

	s.store(snapshot)

	return nil
}

// Snapshots returns all snapshots of a table ordered by CapturedAt.
func (s *MemorySnapshotStore) Snapshots(tableID string) []deltatracker.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]deltatracker.Snapshot, 0, len(s.snapshots[tableID]))
	for _, snapshot := range s.snapshots[tableID] {
		result = append(result, snapshot)
	}

	slices.SortFunc(result, func(a, b deltatracker.Snapshot) int {
		return cmp.Compare(a.CapturedAt, b.CapturedAt)
	})

	return result
}

// PutCalls returns how often Put was called, including failed calls.
func (s *MemorySnapshotStore) PutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putCalls
}

// ProvisionCalls returns how often Provision was called.
func (s *MemorySnapshotStore) ProvisionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.provisionCalls
}

func (s *MemorySnapshotStore) store(snapshot deltatracker.Snapshot) {
	if s.snapshots[snapshot.TableID] == nil {
		s.snapshots[snapshot.TableID] = make(map[int64]deltatracker.Snapshot)
	}

	s.snapshots[snapshot.TableID][snapshot.CapturedAt] = snapshot
}

var _ deltatracker.ProvisionableSnapshotStore = (*MemorySnapshotStore)(nil)
