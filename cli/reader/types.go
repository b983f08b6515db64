// Package reader decodes archived records for the read-only CLI commands.
package reader

// MetricsRecord is an archived run metrics record.
// Counter names follow the archive's *_total keys without the suffix.
type MetricsRecord struct {
	Ts              string `json:"ts"`
	ContractVersion string `json:"contract_version,omitempty"`

	// Dimensions
	RunID          string `json:"run_id"`
	SatelliteID    string `json:"satellite_id"`
	PlanID         string `json:"plan_id,omitempty"`
	StorageBackend string `json:"storage_backend"`

	// Streams
	StreamsStarted   int64 `json:"streams_started"`
	StreamsCompleted int64 `json:"streams_completed"`
	StreamsClosed    int64 `json:"streams_closed"`
	StreamsFailed    int64 `json:"streams_failed"`
	StreamsCancelled int64 `json:"streams_cancelled"`

	// Attempts
	AttemptsStarted   int64            `json:"attempts_started"`
	AttemptsByOutcome map[string]int64 `json:"attempts_by_outcome,omitempty"`
	OpenFailures      int64            `json:"open_failures"`
	SetupSendFailures int64            `json:"setup_send_failures"`

	// Traffic
	BatchesReceived int64            `json:"batches_received"`
	FramesReceived  int64            `json:"frames_received"`
	BytesReceived   int64            `json:"bytes_received"`
	EventsReceived  int64            `json:"events_received"`
	EventsByKind    map[string]int64 `json:"events_by_kind,omitempty"`
	Anomalies       int64            `json:"anomalies"`

	// Persistence
	SinkWriteSuccess      int64 `json:"sink_write_success"`
	SinkWriteFailure      int64 `json:"sink_write_failure"`
	CheckpointSaveFailure int64 `json:"checkpoint_save_failure"`
}
