package lode

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with PartitionKeys.
type LodeClient struct {
	dataset lode.Dataset
	config  Config
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	cfg = cfg.withDefaults()
	ds, err := openDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{dataset: ds, config: cfg}, nil
}

// WriteTelemetry writes one batch as a telemetry record.
func (c *LodeClient) WriteTelemetry(ctx context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch, receivedAt time.Time) error {
	record := toTelemetryRecordMap(meta, streamID, batch, c.config, receivedAt)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.path(meta.SatelliteID, meta.RunID, RecordKindTelemetry))
	}
	return nil
}

// WriteMetrics writes the run metrics record.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, c.config, completedAt)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.path(snap.SatelliteID, snap.RunID, RecordKindMetrics))
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

func (c *LodeClient) path(satelliteID, runID, kind string) string {
	return fmt.Sprintf("%s/satellite_id=%s/day=%s/run_id=%s/record_kind=%s",
		c.config.Dataset, satelliteID, c.config.Day, runID, kind)
}

var _ Client = (*LodeClient)(nil)
