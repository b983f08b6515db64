// Package adapter defines the notification boundary for finished streams.
//
// Adapters publish one completion notification per logical stream to a
// downstream system. The supervisor owns adapter lifecycle; users provide
// configuration only.
package adapter

import "context"

// EventTypeStreamCompleted is the event_type of every published event.
const EventTypeStreamCompleted = "stream_completed"

// StreamCompletedEvent is the payload published when a logical stream ends.
type StreamCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "stream_completed"
	RunID           string `json:"run_id"`
	StreamIndex     int    `json:"stream_index"`
	SatelliteID     string `json:"satellite_id"`
	PlanID          string `json:"plan_id,omitempty"`
	Outcome         string `json:"outcome"` // completed, closed, failed, cancelled
	Error           string `json:"error,omitempty"`
	StreamID        string `json:"stream_id,omitempty"`
	ResumeAckID     string `json:"resume_ack_id,omitempty"`
	Frames          uint64 `json:"frames"`
	Bytes           uint64 `json:"bytes"`
	Attempts        int    `json:"attempts"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes stream completion events to a downstream system.
// Implementations must be safe for concurrent use by all streams of a run.
type Adapter interface {
	// Publish sends a stream completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *StreamCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
