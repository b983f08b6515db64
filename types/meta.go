// Package types defines stream identity, outcomes and resume state shared
// across the downlink packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"net/url"
)

// StreamMeta identifies one logical stream within a supervisor run.
type StreamMeta struct {
	// RunID identifies the supervisor run. Shared by all streams of the run.
	RunID string
	// SatelliteID is the satellite whose telemetry is requested.
	SatelliteID string
	// PlanID optionally narrows the stream to one plan.
	PlanID string
	// Index is the position of the stream within the run, starting at 0.
	Index int
}

// Validate checks stream identity:
//   - run_id is non-empty
//   - satellite_id is non-empty
//   - index >= 0
func (m *StreamMeta) Validate() error {
	if m.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if m.SatelliteID == "" {
		return errors.New("satellite_id must be non-empty")
	}
	if m.Index < 0 {
		return fmt.Errorf("stream index must be >= 0, got %d", m.Index)
	}
	return nil
}

// CheckpointKey derives the checkpoint key for the stream.
// Format: <satellite>,<plan>,<index> with satellite and plan path-escaped.
// PathEscape always escapes ',' and '/', so the key splits unambiguously and
// is a single path segment.
func (m *StreamMeta) CheckpointKey() string {
	return fmt.Sprintf("%s,%s,%d", url.PathEscape(m.SatelliteID), url.PathEscape(m.PlanID), m.Index)
}

// AttemptOutcome is the terminal state of one physical attempt.
type AttemptOutcome string

const (
	// AttemptCompleted indicates the end-of-stream sentinel was observed.
	AttemptCompleted AttemptOutcome = "completed"
	// AttemptClosed indicates the server ended the stream without a sentinel.
	AttemptClosed AttemptOutcome = "closed"
	// AttemptErrored indicates a transport error surfaced on receive.
	AttemptErrored AttemptOutcome = "errored"
	// AttemptCancelled indicates the cancellation scope fired.
	AttemptCancelled AttemptOutcome = "cancelled"
)

// StreamOutcome is the terminal state of one logical stream.
type StreamOutcome string

const (
	// StreamCompleted indicates the logical stream reached end-of-stream.
	StreamCompleted StreamOutcome = "completed"
	// StreamClosed indicates the stream was closed by the server and
	// reconnection was disabled.
	StreamClosed StreamOutcome = "closed"
	// StreamFailed indicates initialization or transport failure.
	StreamFailed StreamOutcome = "failed"
	// StreamCancelled indicates the stream was cancelled by the caller.
	StreamCancelled StreamOutcome = "cancelled"
)

// StreamOutcomeFor maps the last attempt outcome to the logical stream outcome.
func StreamOutcomeFor(last AttemptOutcome) StreamOutcome {
	switch last {
	case AttemptCompleted:
		return StreamCompleted
	case AttemptClosed:
		return StreamClosed
	case AttemptCancelled:
		return StreamCancelled
	default:
		return StreamFailed
	}
}

// IsFailure reports whether the outcome should fail the process.
func (o StreamOutcome) IsFailure() bool {
	return o == StreamFailed
}
