// Package lode archives telemetry batches and run metrics in a Lode dataset.
//
// Records are Hive-partitioned by satellite_id/day/run_id/record_kind so a
// single satellite's downlinks can be listed per day without scanning others.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/stream"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "downlink"

// DeriveDay computes the partition day from the run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds archive configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition day derived from the run start time.
	Day string
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	return c
}

// Client abstracts the archive storage client.
type Client interface {
	// WriteTelemetry writes one telemetry batch as one record.
	WriteTelemetry(ctx context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch, receivedAt time.Time) error
	// WriteMetrics writes the run metrics record.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
	// Close releases client resources.
	Close() error
}

// Sink archives telemetry batches through a Client.
type Sink struct {
	client Client
	now    func() time.Time
}

// NewSink creates a new archive sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client, now: time.Now}
}

// WriteBatch implements stream.BatchSink.
func (s *Sink) WriteBatch(ctx context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch) error {
	return s.client.WriteTelemetry(ctx, meta, streamID, batch, s.now())
}

// WriteMetrics archives the run metrics snapshot.
func (s *Sink) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return s.client.WriteMetrics(ctx, snap, completedAt)
}

// Close closes the underlying client.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ stream.BatchSink = (*Sink)(nil)

// StubClient accepts writes without persisting. Used when no storage is
// configured and in tests.
type StubClient struct {
	mu        sync.Mutex
	Telemetry []StubTelemetryRecord
	Metrics   []metrics.Snapshot
	Closed    bool
}

// StubTelemetryRecord is a recorded telemetry write.
type StubTelemetryRecord struct {
	Meta     types.StreamMeta
	StreamID string
	AckID    string
	Frames   int
	Bytes    uint64
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteTelemetry implements Client.
func (c *StubClient) WriteTelemetry(_ context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Telemetry = append(c.Telemetry, StubTelemetryRecord{
		Meta:     meta,
		StreamID: streamID,
		AckID:    batch.MessageAckID,
		Frames:   len(batch.Frames),
		Bytes:    batch.ByteCount(),
	})
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
