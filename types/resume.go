// Package types defines core domain types for the downlink client.
//
//nolint:revive // types is a common Go package naming convention
package types

// ResumeHints is the (stream_id, resume_ack_id) pair sent to the service when a
// physical attempt opens. Both empty means "start fresh".
type ResumeHints struct {
	// StreamID is the server-assigned identity of a previous physical stream.
	StreamID string `msgpack:"stream_id" json:"stream_id,omitempty" yaml:"stream_id,omitempty"`
	// ResumeAckID is the ack id of the last telemetry batch processed.
	ResumeAckID string `msgpack:"resume_ack_id" json:"resume_ack_id,omitempty" yaml:"resume_ack_id,omitempty"`
}

// IsZero reports whether no hint is set.
func (h ResumeHints) IsZero() bool {
	return h.StreamID == "" && h.ResumeAckID == ""
}

// ResumeState tracks the progress of one logical stream across physical attempts.
//
// A ResumeState is owned by exactly one in-flight attempt and handed to the
// next attempt by value. Empty StreamID / ResumeAckID mean "unset".
type ResumeState struct {
	// Complete is true once the end-of-stream sentinel was observed.
	Complete bool `msgpack:"complete" json:"complete" yaml:"complete"`
	// Bytes is the cumulative payload byte count.
	Bytes uint64 `msgpack:"bytes" json:"bytes" yaml:"bytes"`
	// Frames is the cumulative telemetry frame count.
	Frames uint64 `msgpack:"frames" json:"frames" yaml:"frames"`
	// StreamID is the server-assigned identity of the latest physical stream.
	StreamID string `msgpack:"stream_id" json:"stream_id,omitempty" yaml:"stream_id,omitempty"`
	// ResumeAckID is the ack id of the most recently processed telemetry batch.
	ResumeAckID string `msgpack:"resume_ack_id" json:"resume_ack_id,omitempty" yaml:"resume_ack_id,omitempty"`
}

// NewResumeState returns an empty state seeded with the given hints.
// Counters start at zero; only the identity fields carry over.
func NewResumeState(hints ResumeHints) ResumeState {
	return ResumeState{
		StreamID:    hints.StreamID,
		ResumeAckID: hints.ResumeAckID,
	}
}

// Hints projects the resume hint pair out of the state.
func (s ResumeState) Hints() ResumeHints {
	return ResumeHints{StreamID: s.StreamID, ResumeAckID: s.ResumeAckID}
}

// Accumulate folds the result of a later attempt into s.
// Counters add; StreamID, ResumeAckID and Complete are replaced by next's values.
func (s ResumeState) Accumulate(next ResumeState) ResumeState {
	return ResumeState{
		Complete:    next.Complete,
		Bytes:       s.Bytes + next.Bytes,
		Frames:      s.Frames + next.Frames,
		StreamID:    next.StreamID,
		ResumeAckID: next.ResumeAckID,
	}
}
