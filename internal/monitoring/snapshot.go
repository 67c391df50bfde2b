package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/store"
)

// Snapshot holds a point-in-time view of catalog freshness.
type Snapshot struct {
	TotalOpportunities int        `json:"total_opportunities"`
	ChangesInWindow    int        `json:"changes_in_window"`
	LastChangeAt       *time.Time `json:"last_change_at"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SnapshotReader is the subset of store.Store a Snapshotter needs.
type SnapshotReader interface {
	CountOpportunities(ctx context.Context) (int, error)
	RecentChanges(ctx context.Context, since time.Time, limit int) ([]model.RecentChange, error)
}

// Snapshotter gathers freshness metrics from the store.
type Snapshotter struct {
	store SnapshotReader
}

// NewSnapshotter creates a Snapshotter over st.
func NewSnapshotter(st SnapshotReader) *Snapshotter {
	return &Snapshotter{store: st}
}

// changeScanLimit caps how many change rows one snapshot reads.
const changeScanLimit = 10000

// Collect gathers a snapshot over the given lookback window.
func (s *Snapshotter) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	total, err := s.store.CountOpportunities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count opportunities")
	}
	snap.TotalOpportunities = total

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	changes, err := s.store.RecentChanges(ctx, cutoff, changeScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: recent changes")
	}
	snap.ChangesInWindow = len(changes)
	if len(changes) > 0 {
		last := changes[0].ChangeDate
		snap.LastChangeAt = &last
	}

	return snap, nil
}

var _ SnapshotReader = (store.Store)(nil)
