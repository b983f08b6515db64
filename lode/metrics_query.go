package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics record matches.
var ErrNoMetricsFound = errors.New("no metrics records found")

// QueryLatestMetrics returns the newest metrics record, optionally narrowed
// to one run and one satellite. Empty filters match everything.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID, satelliteID string) (map[string]any, error) {
	filters := []partition{
		{"record_kind", RecordKindMetrics},
		{"run_id", runID},
		{"satellite_id", satelliteID},
	}

	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !coveredByAll(snap, filters) {
			continue
		}
		items, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		// A manifest can span partitions; check the record fields too.
		for _, item := range items {
			if record, ok := item.(map[string]any); ok && recordMatches(record, filters) {
				return record, nil
			}
		}
	}
	return nil, ErrNoMetricsFound
}

func coveredByAll(snap *lode.DatasetSnapshot, filters []partition) bool {
	for _, p := range filters {
		if !p.covers(snap) {
			return false
		}
	}
	return true
}

func recordMatches(record map[string]any, filters []partition) bool {
	for _, p := range filters {
		if p.value == "" {
			continue
		}
		if s, _ := record[p.key].(string); s != p.value {
			return false
		}
	}
	return true
}
