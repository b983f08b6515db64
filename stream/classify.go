package stream

import (
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// EventKind classifies stream events for observers.
type EventKind string

const (
	// EventCommandSent is a CommandSent event.
	EventCommandSent EventKind = "command_sent"
	// EventPlanMonitoring is a PlanMonitoringEvent.
	EventPlanMonitoring EventKind = "plan_monitoring"
	// EventAnomaly is a stream event carrying no known variant.
	EventAnomaly EventKind = "anomaly"
)

// EventObserver is notified of stream events. Events never change resume state.
type EventObserver func(kind EventKind, event *wire.StreamEvent)

// OnMessage folds one inbound message into state and returns the next state.
//
// Telemetry batches add their frame and byte counts, replace the resume ack
// id and mark the state complete when the batch is the end-of-stream
// sentinel. Stream events are handed to observe (which may be nil) and leave
// state unchanged. A response with no payload is a no-op.
func OnMessage(state types.ResumeState, resp *wire.SatelliteStreamResponse, observe EventObserver) types.ResumeState {
	switch p := resp.Payload.(type) {
	case *wire.TelemetryBatch:
		state.Frames += uint64(len(p.Frames))
		state.Bytes += p.ByteCount()
		state.ResumeAckID = p.MessageAckID
		state.Complete = p.IsEndOfStream()
		// Deviates from always overwriting stream_id: proto3 cannot tell an
		// absent stream_id from an empty one, and an empty value would erase
		// the resume hint. A non-empty envelope value always wins.
		if resp.StreamID != "" {
			state.StreamID = resp.StreamID
		}
	case *wire.StreamEvent:
		if observe != nil {
			observe(eventKind(p), p)
		}
	case nil:
	}
	return state
}

func eventKind(e *wire.StreamEvent) EventKind {
	switch e.Event.(type) {
	case *wire.CommandSent:
		return EventCommandSent
	case *wire.PlanMonitoringEvent:
		return EventPlanMonitoring
	default:
		return EventAnomaly
	}
}
