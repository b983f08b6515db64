package reader

import "errors"

// ParseMetricsRecord converts an archived record (map[string]any) to a MetricsRecord.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsRecord, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	rec := &MetricsRecord{
		Ts:              toString(record["ts"]),
		ContractVersion: toString(record["contract_version"]),

		RunID:          toString(record["run_id"]),
		SatelliteID:    toString(record["satellite_id"]),
		PlanID:         toString(record["plan_id"]),
		StorageBackend: toString(record["storage_backend"]),

		StreamsStarted:   toInt64(record["streams_started_total"]),
		StreamsCompleted: toInt64(record["streams_completed_total"]),
		StreamsClosed:    toInt64(record["streams_closed_total"]),
		StreamsFailed:    toInt64(record["streams_failed_total"]),
		StreamsCancelled: toInt64(record["streams_cancelled_total"]),

		AttemptsStarted:   toInt64(record["attempts_started_total"]),
		AttemptsByOutcome: toCounts(record["attempts_by_outcome"]),
		OpenFailures:      toInt64(record["open_failures_total"]),
		SetupSendFailures: toInt64(record["setup_send_failures_total"]),

		BatchesReceived: toInt64(record["batches_received_total"]),
		FramesReceived:  toInt64(record["frames_received_total"]),
		BytesReceived:   toInt64(record["bytes_received_total"]),
		EventsReceived:  toInt64(record["events_received_total"]),
		EventsByKind:    toCounts(record["events_by_kind"]),
		Anomalies:       toInt64(record["anomalies_total"]),

		SinkWriteSuccess:      toInt64(record["sink_write_success_total"]),
		SinkWriteFailure:      toInt64(record["sink_write_failure_total"]),
		CheckpointSaveFailure: toInt64(record["checkpoint_save_failure_total"]),
	}

	// The write path always populates these; a missing value means the
	// record is malformed.
	if rec.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if rec.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}
	if rec.SatelliteID == "" {
		return nil, errors.New("metrics record missing required field: satellite_id")
	}
	if rec.StorageBackend == "" {
		return nil, errors.New("metrics record missing required field: storage_backend")
	}

	return rec, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toCounts converts a per-key counter map from either storage form.
func toCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
