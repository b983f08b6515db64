package wire

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers per the table in doc.go.
const (
	fieldRequestSatelliteID     protowire.Number = 1
	fieldRequestStreamID        protowire.Number = 2
	fieldRequestAcceptedFraming protowire.Number = 4
	fieldRequestPlanID          protowire.Number = 7
	fieldRequestResumeAckID     protowire.Number = 8

	fieldResponseStreamID  protowire.Number = 1
	fieldResponseTelemetry protowire.Number = 2
	fieldResponseEvent     protowire.Number = 3

	fieldBatchTelemetry       protowire.Number = 1
	fieldBatchMessageAckID    protowire.Number = 2
	fieldBatchGroundStationID protowire.Number = 3
	fieldBatchSatelliteID     protowire.Number = 4
	fieldBatchPlanID          protowire.Number = 5
	fieldBatchFrames          protowire.Number = 6

	fieldFrameFraming    protowire.Number = 1
	fieldFrameData       protowire.Number = 2
	fieldFrameDownlinkHz protowire.Number = 5
	fieldFrameHeader     protowire.Number = 6

	fieldEventRequestID     protowire.Number = 1
	fieldEventCommandSent   protowire.Number = 2
	fieldEventPlanMonitored protowire.Number = 3

	fieldCommandSentCommands protowire.Number = 1

	fieldPlanEventPlanID        protowire.Number = 1
	fieldPlanEventGroundStation protowire.Number = 2
	fieldGroundStationEventPlan protowire.Number = 2
	fieldPlanLifecycleStatus    protowire.Number = 1
)

// Marshal encodes the request.
func (r *SatelliteStreamRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, fieldRequestSatelliteID, r.SatelliteID)
	b = appendString(b, fieldRequestStreamID, r.StreamID)
	if len(r.AcceptedFraming) > 0 {
		var packed []byte
		for _, f := range r.AcceptedFraming {
			packed = protowire.AppendVarint(packed, uint64(f))
		}
		b = appendMessage(b, fieldRequestAcceptedFraming, packed)
	}
	b = appendString(b, fieldRequestPlanID, r.PlanID)
	b = appendString(b, fieldRequestResumeAckID, r.ResumeStreamMessageAckID)
	return b, nil
}

// Marshal encodes the response. Used by servers and tests.
func (r *SatelliteStreamResponse) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, fieldResponseStreamID, r.StreamID)
	switch p := r.Payload.(type) {
	case nil:
	case *TelemetryBatch:
		b = appendMessage(b, fieldResponseTelemetry, p.appendTo(nil))
	case *StreamEvent:
		b = appendMessage(b, fieldResponseEvent, p.appendTo(nil))
	}
	return b, nil
}

// appendTo always writes frames to the repeated batch field.
func (t *TelemetryBatch) appendTo(b []byte) []byte {
	b = appendString(b, fieldBatchMessageAckID, t.MessageAckID)
	b = appendString(b, fieldBatchGroundStationID, t.GroundStationID)
	b = appendString(b, fieldBatchSatelliteID, t.SatelliteID)
	b = appendString(b, fieldBatchPlanID, t.PlanID)
	for i := range t.Frames {
		b = appendMessage(b, fieldBatchFrames, t.Frames[i].appendTo(nil))
	}
	return b
}

func (f *Frame) appendTo(b []byte) []byte {
	b = appendVarint(b, fieldFrameFraming, uint64(f.Framing))
	b = appendBytes(b, fieldFrameData, f.Data)
	b = appendVarint(b, fieldFrameDownlinkHz, f.DownlinkFrequencyHz)
	b = appendBytes(b, fieldFrameHeader, f.FrameHeader)
	return b
}

func (e *StreamEvent) appendTo(b []byte) []byte {
	b = appendString(b, fieldEventRequestID, e.RequestID)
	switch ev := e.Event.(type) {
	case nil:
	case *CommandSent:
		var inner []byte
		for _, cmd := range ev.Commands {
			inner = protowire.AppendTag(inner, fieldCommandSentCommands, protowire.BytesType)
			inner = protowire.AppendBytes(inner, cmd)
		}
		b = appendMessage(b, fieldEventCommandSent, inner)
	case *PlanMonitoringEvent:
		lifecycle := appendVarint(nil, fieldPlanLifecycleStatus, uint64(ev.Status))
		gsEvent := appendMessage(nil, fieldGroundStationEventPlan, lifecycle)
		var inner []byte
		inner = appendString(inner, fieldPlanEventPlanID, ev.PlanID)
		inner = appendMessage(inner, fieldPlanEventGroundStation, gsEvent)
		b = appendMessage(b, fieldEventPlanMonitored, inner)
	}
	return b
}

// appendString emits a string field, omitting the proto3 default.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendBytes emits a bytes field, omitting the proto3 default.
func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendVarint emits a varint field, omitting zero.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendMessage emits an embedded message, even when empty.
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
