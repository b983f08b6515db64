package lode

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/downlink/metrics"
)

func writeMetrics(t *testing.T, factory lode.StoreFactory, snap metrics.Snapshot, at time.Time) {
	t.Helper()
	client, err := NewLodeClientWithFactory(Config{Day: DeriveDay(at)}, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteMetrics(t.Context(), snap, at); err != nil {
		t.Fatalf("WriteMetrics failed: %v", err)
	}
}

func readDataset(t *testing.T, factory lode.StoreFactory) lode.Dataset {
	t.Helper()
	ds, err := NewReadDataset(DefaultDataset, factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	return ds
}

func TestQueryLatestMetrics_WriteAndRead(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	snap := metrics.Snapshot{
		StreamsStarted:   3,
		StreamsCompleted: 3,
		FramesReceived:   420,
		BytesReceived:    16800,
		RunID:            "run-001",
		SatelliteID:      "98",
		PlanID:           "p1",
		StorageBackend:   "fs",
	}
	writeMetrics(t, factory, snap, time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC))

	record, err := QueryLatestMetrics(t.Context(), readDataset(t, factory), "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if toInt64(record["streams_completed_total"]) != 3 {
		t.Errorf("streams_completed_total = %v, want 3", record["streams_completed_total"])
	}
	if toInt64(record["frames_received_total"]) != 420 {
		t.Errorf("frames_received_total = %v, want 420", record["frames_received_total"])
	}
	if record["plan_id"] != "p1" || record["storage_backend"] != "fs" {
		t.Errorf("dimensions = %v / %v", record["plan_id"], record["storage_backend"])
	}
	if record["ts"] != "2026-10-18T15:00:00Z" {
		t.Errorf("ts = %v", record["ts"])
	}
}

func TestQueryLatestMetrics_LatestWins(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	writeMetrics(t, factory, metrics.Snapshot{RunID: "run-1", SatelliteID: "98", StreamsStarted: 1}, base)
	writeMetrics(t, factory, metrics.Snapshot{RunID: "run-2", SatelliteID: "98", StreamsStarted: 2}, base.Add(time.Hour))

	record, err := QueryLatestMetrics(t.Context(), readDataset(t, factory), "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if record["run_id"] != "run-2" {
		t.Errorf("run_id = %v, want run-2", record["run_id"])
	}
}

func TestQueryLatestMetrics_Filters(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	writeMetrics(t, factory, metrics.Snapshot{RunID: "run-1", SatelliteID: "98", StreamsStarted: 1}, at)
	writeMetrics(t, factory, metrics.Snapshot{RunID: "run-10", SatelliteID: "99", StreamsStarted: 10}, at)
	writeMetrics(t, factory, metrics.Snapshot{RunID: "run-2", SatelliteID: "9", StreamsStarted: 2}, at)

	ds := readDataset(t, factory)

	tests := []struct {
		name        string
		runID       string
		satelliteID string
		wantRun     string
	}{
		{"by run id without prefix collision", "run-1", "", "run-1"},
		{"by satellite without prefix collision", "", "9", "run-2"},
		{"by both", "run-10", "99", "run-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := QueryLatestMetrics(t.Context(), ds, tt.runID, tt.satelliteID)
			if err != nil {
				t.Fatalf("QueryLatestMetrics failed: %v", err)
			}
			if record["run_id"] != tt.wantRun {
				t.Errorf("run_id = %v, want %s", record["run_id"], tt.wantRun)
			}
		})
	}

	if _, err := QueryLatestMetrics(t.Context(), ds, "run-1", "99"); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("mismatched filters: err = %v, want ErrNoMetricsFound", err)
	}
}

func TestQueryLatestMetrics_IgnoresTelemetry(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	client, err := NewLodeClientWithFactory(Config{Day: "2026-10-18"}, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteTelemetry(t.Context(), testStreamMeta, "S", testBatch(), time.Now()); err != nil {
		t.Fatalf("WriteTelemetry failed: %v", err)
	}

	_, err = QueryLatestMetrics(t.Context(), readDataset(t, factory), "", "")
	if !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("err = %v, want ErrNoMetricsFound", err)
	}
}

func TestPartition_Contains(t *testing.T) {
	path := "datasets/downlink/partitions/satellite_id=98/day=2026-10-18/run_id=run-1/record_kind=metrics/seg.jsonl"
	tests := []struct {
		p    partition
		want bool
	}{
		{partition{"run_id", "run-1"}, true},
		{partition{"run_id", "run"}, false},
		{partition{"satellite_id", "9"}, false},
		{partition{"record_kind", "metrics"}, true},
		{partition{"run_id", ""}, true},
	}
	for _, tt := range tests {
		if got := tt.p.contains(path); got != tt.want {
			t.Errorf("%s=%s contains = %v, want %v", tt.p.key, tt.p.value, got, tt.want)
		}
	}
}

func TestRecordMatches(t *testing.T) {
	record := map[string]any{"record_kind": "metrics", "run_id": "run-1", "satellite_id": "98"}
	if !recordMatches(record, []partition{{"run_id", "run-1"}, {"satellite_id", ""}}) {
		t.Error("expected match")
	}
	if recordMatches(record, []partition{{"satellite_id", "99"}}) {
		t.Error("satellite mismatch should not match")
	}
	if recordMatches(map[string]any{"run_id": 7}, []partition{{"run_id", "7"}}) {
		t.Error("non-string field should not match")
	}
}
