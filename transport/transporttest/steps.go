package transporttest

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pithecene-io/downlink/wire"
)

// Batch sends a telemetry batch with one frame per payload.
func Batch(streamID, ackID string, payloads ...[]byte) Step {
	frames := make([]wire.Frame, len(payloads))
	for i, p := range payloads {
		frames[i] = wire.Frame{Data: p}
	}
	return Step{Response: &wire.SatelliteStreamResponse{
		StreamID: streamID,
		Payload:  &wire.TelemetryBatch{MessageAckID: ackID, Frames: frames},
	}}
}

// EndOfStream sends the end-of-stream sentinel: one frame with no payload.
func EndOfStream(streamID, ackID string) Step {
	return Batch(streamID, ackID, nil)
}

// Event sends a stream event.
func Event(streamID string, event wire.Event) Step {
	return Step{Response: &wire.SatelliteStreamResponse{
		StreamID: streamID,
		Payload:  &wire.StreamEvent{Event: event},
	}}
}

// Fail ends the call with a gRPC status.
func Fail(code codes.Code, msg string) Step {
	return Step{Err: status.Error(code, msg)}
}

// Hang keeps the call open until the client cancels.
func Hang() Step {
	return Step{Hang: true}
}
