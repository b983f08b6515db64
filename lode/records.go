package lode

import (
	"maps"
	"time"

	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// RecordKind discriminator values. record_kind is also the last partition key.
const (
	RecordKindTelemetry = "telemetry"
	RecordKindMetrics   = "metrics"
)

// PartitionKeys is the Hive layout shared by the write and read paths.
var PartitionKeys = []string{"satellite_id", "day", "run_id", "record_kind"}

// toTelemetryRecordMap converts a batch to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toTelemetryRecordMap(meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch, cfg Config, receivedAt time.Time) map[string]any {
	frames := make([][]byte, len(batch.Frames))
	framings := make([]string, len(batch.Frames))
	for i, f := range batch.Frames {
		frames[i] = f.Data
		framings[i] = f.Framing.String()
	}

	m := map[string]any{
		"record_kind":       RecordKindTelemetry,
		"contract_version":  types.ContractVersion,
		"run_id":            meta.RunID,
		"stream_index":      meta.Index,
		"satellite_id":      meta.SatelliteID,
		"stream_id":         streamID,
		"message_ack_id":    batch.MessageAckID,
		"ground_station_id": batch.GroundStationID,
		"frame_count":       int64(len(batch.Frames)),
		"byte_count":        int64(batch.ByteCount()),
		"end_of_stream":     batch.IsEndOfStream(),
		"frames":            frames,
		"framings":          framings,
		"received_at":       receivedAt.UTC().Format(time.RFC3339Nano),
		"day":               cfg.Day,
	}
	// The batch's own plan id wins over the request filter.
	switch {
	case batch.PlanID != "":
		m["plan_id"] = batch.PlanID
	case meta.PlanID != "":
		m["plan_id"] = meta.PlanID
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	m := map[string]any{
		"record_kind":                   RecordKindMetrics,
		"contract_version":              types.ContractVersion,
		"ts":                            completedAt.UTC().Format(time.RFC3339Nano),
		"run_id":                        snap.RunID,
		"satellite_id":                  snap.SatelliteID,
		"day":                           cfg.Day,
		"storage_backend":               snap.StorageBackend,
		"streams_started_total":         snap.StreamsStarted,
		"streams_completed_total":       snap.StreamsCompleted,
		"streams_closed_total":          snap.StreamsClosed,
		"streams_failed_total":          snap.StreamsFailed,
		"streams_cancelled_total":       snap.StreamsCancelled,
		"attempts_started_total":        snap.AttemptsStarted,
		"attempts_by_outcome":           copyCounts(snap.AttemptsByOutcome),
		"open_failures_total":           snap.OpenFailures,
		"setup_send_failures_total":     snap.SetupSendFailures,
		"batches_received_total":        snap.BatchesReceived,
		"frames_received_total":         snap.FramesReceived,
		"bytes_received_total":          snap.BytesReceived,
		"events_received_total":         snap.EventsReceived,
		"events_by_kind":                copyCounts(snap.EventsByKind),
		"anomalies_total":               snap.Anomalies,
		"sink_write_success_total":      snap.SinkWriteSuccess,
		"sink_write_failure_total":      snap.SinkWriteFailure,
		"checkpoint_save_failure_total": snap.CheckpointSaveFailure,
	}
	if snap.PlanID != "" {
		m["plan_id"] = snap.PlanID
	}
	return m
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	maps.Copy(dst, src)
	return dst
}
