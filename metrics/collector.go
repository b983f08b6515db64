// Package metrics provides per-run counters for a downlink run.
//
// The Collector accumulates counters across every logical stream of a run. It
// is a leaf package with no internal dependencies; outcomes are recorded by
// their string names.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Logical streams
	StreamsStarted   int64 `json:"streams_started"`
	StreamsCompleted int64 `json:"streams_completed"`
	StreamsClosed    int64 `json:"streams_closed"`
	StreamsFailed    int64 `json:"streams_failed"`
	StreamsCancelled int64 `json:"streams_cancelled"`

	// Physical attempts
	AttemptsStarted   int64            `json:"attempts_started"`
	AttemptsByOutcome map[string]int64 `json:"attempts_by_outcome"`
	OpenFailures      int64            `json:"open_failures"`
	SetupSendFailures int64            `json:"setup_send_failures"`

	// Inbound traffic
	BatchesReceived int64            `json:"batches_received"`
	FramesReceived  int64            `json:"frames_received"`
	BytesReceived   int64            `json:"bytes_received"`
	EventsReceived  int64            `json:"events_received"`
	EventsByKind    map[string]int64 `json:"events_by_kind"`
	Anomalies       int64            `json:"anomalies"`

	// Storage
	SinkWriteSuccess      int64 `json:"sink_write_success"`
	SinkWriteFailure      int64 `json:"sink_write_failure"`
	CheckpointSaveFailure int64 `json:"checkpoint_save_failure"`

	// Dimensions (informational, set at construction)
	RunID          string `json:"run_id"`
	SatelliteID    string `json:"satellite_id"`
	PlanID         string `json:"plan_id,omitempty"`
	StorageBackend string `json:"storage_backend"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	streamsStarted   int64
	streamsCompleted int64
	streamsClosed    int64
	streamsFailed    int64
	streamsCancelled int64

	attemptsStarted   int64
	attemptsByOutcome map[string]int64
	openFailures      int64
	setupSendFailures int64

	batchesReceived int64
	framesReceived  int64
	bytesReceived   int64
	eventsReceived  int64
	eventsByKind    map[string]int64
	anomalies       int64

	sinkWriteSuccess      int64
	sinkWriteFailure      int64
	checkpointSaveFailure int64

	runID          string
	satelliteID    string
	planID         string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
// planID is optional; storageBackend is "none" when no archive is configured.
func NewCollector(runID, satelliteID, planID, storageBackend string) *Collector {
	return &Collector{
		attemptsByOutcome: make(map[string]int64),
		eventsByKind:      make(map[string]int64),
		runID:             runID,
		satelliteID:       satelliteID,
		planID:            planID,
		storageBackend:    storageBackend,
	}
}

func (c *Collector) inc(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Logical streams ---

// IncStreamStarted records a logical stream start.
func (c *Collector) IncStreamStarted() {
	if c == nil {
		return
	}
	c.inc(&c.streamsStarted)
}

// RecordStreamOutcome records the terminal outcome of a logical stream:
// completed, closed, failed or cancelled. Unknown outcomes count as failed.
func (c *Collector) RecordStreamOutcome(outcome string) {
	if c == nil {
		return
	}
	switch outcome {
	case "completed":
		c.inc(&c.streamsCompleted)
	case "closed":
		c.inc(&c.streamsClosed)
	case "cancelled":
		c.inc(&c.streamsCancelled)
	default:
		c.inc(&c.streamsFailed)
	}
}

// --- Physical attempts ---

// IncAttemptStarted records a physical attempt start.
func (c *Collector) IncAttemptStarted() {
	if c == nil {
		return
	}
	c.inc(&c.attemptsStarted)
}

// RecordAttemptOutcome records the terminal outcome of a physical attempt.
func (c *Collector) RecordAttemptOutcome(outcome string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attemptsByOutcome[outcome]++
	c.mu.Unlock()
}

// IncOpenFailure records an attempt that failed before receiving
// (credential attach or stream open).
func (c *Collector) IncOpenFailure() {
	if c == nil {
		return
	}
	c.inc(&c.openFailures)
}

// IncSetupSendFailure records a setup message that could not be sent.
func (c *Collector) IncSetupSendFailure() {
	if c == nil {
		return
	}
	c.inc(&c.setupSendFailures)
}

// --- Inbound traffic ---

// RecordBatch records one telemetry batch.
func (c *Collector) RecordBatch(frames, bytes uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesReceived++
	c.framesReceived += int64(frames)
	c.bytesReceived += int64(bytes)
	c.mu.Unlock()
}

// RecordEvent records one stream event by kind.
func (c *Collector) RecordEvent(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.eventsByKind[kind]++
	c.mu.Unlock()
}

// IncAnomaly records an inbound message that could not be classified.
func (c *Collector) IncAnomaly() {
	if c == nil {
		return
	}
	c.inc(&c.anomalies)
}

// --- Storage ---
// Sink counters are per-call: one batch written counts as one success.

// IncSinkWriteSuccess records a successful archive write.
func (c *Collector) IncSinkWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteSuccess)
}

// IncSinkWriteFailure records a failed archive write.
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteFailure)
}

// IncCheckpointSaveFailure records a checkpoint that could not be saved.
func (c *Collector) IncCheckpointSaveFailure() {
	if c == nil {
		return
	}
	c.inc(&c.checkpointSaveFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		StreamsStarted:   c.streamsStarted,
		StreamsCompleted: c.streamsCompleted,
		StreamsClosed:    c.streamsClosed,
		StreamsFailed:    c.streamsFailed,
		StreamsCancelled: c.streamsCancelled,

		AttemptsStarted:   c.attemptsStarted,
		AttemptsByOutcome: copyCounts(c.attemptsByOutcome),
		OpenFailures:      c.openFailures,
		SetupSendFailures: c.setupSendFailures,

		BatchesReceived: c.batchesReceived,
		FramesReceived:  c.framesReceived,
		BytesReceived:   c.bytesReceived,
		EventsReceived:  c.eventsReceived,
		EventsByKind:    copyCounts(c.eventsByKind),
		Anomalies:       c.anomalies,

		SinkWriteSuccess:      c.sinkWriteSuccess,
		SinkWriteFailure:      c.sinkWriteFailure,
		CheckpointSaveFailure: c.checkpointSaveFailure,

		RunID:          c.runID,
		SatelliteID:    c.satelliteID,
		PlanID:         c.planID,
		StorageBackend: c.storageBackend,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
