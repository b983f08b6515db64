package lode

import (
	"context"

	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/stream"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// InstrumentedSink wraps a stream.BatchSink and counts writes. Each
// WriteBatch call increments sink_write_success or sink_write_failure.
type InstrumentedSink struct {
	inner     stream.BatchSink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner stream.BatchSink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteBatch delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteBatch(ctx context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch) error {
	err := s.inner.WriteBatch(ctx, meta, streamID, batch)
	if err != nil {
		s.collector.IncSinkWriteFailure()
	} else {
		s.collector.IncSinkWriteSuccess()
	}
	return err
}

var _ stream.BatchSink = (*InstrumentedSink)(nil)
