package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeErrorKind classifies wire decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorTag indicates a malformed or truncated field tag.
	DecodeErrorTag DecodeErrorKind = iota
	// DecodeErrorField indicates a malformed or truncated field value.
	DecodeErrorField
	// DecodeErrorWireType indicates a known field arrived with the wrong wire type.
	DecodeErrorWireType
)

// DecodeError represents a wire decoding error.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// fieldVisitor consumes the value of one field and returns the bytes consumed.
type fieldVisitor func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walk iterates the fields of an encoded message.
func walk(msg string, b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{
				Kind: DecodeErrorTag,
				Msg:  msg + ": malformed tag",
				Err:  protowire.ParseError(n),
			}
		}
		b = b[n:]

		m, err := visit(num, typ, b)
		if err != nil {
			return fmt.Errorf("%s: field %d: %w", msg, num, err)
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, &DecodeError{Kind: DecodeErrorField, Msg: "malformed unknown field", Err: protowire.ParseError(n)}
	}
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, &DecodeError{Kind: DecodeErrorWireType, Msg: fmt.Sprintf("expected length-delimited, got wire type %d", typ)}
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, &DecodeError{Kind: DecodeErrorField, Msg: "malformed length-delimited field", Err: protowire.ParseError(n)}
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, &DecodeError{Kind: DecodeErrorWireType, Msg: fmt.Sprintf("expected varint, got wire type %d", typ)}
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, &DecodeError{Kind: DecodeErrorField, Msg: "malformed varint field", Err: protowire.ParseError(n)}
	}
	*dst = v
	return n, nil
}

// consumeFraming accepts a repeated enum in packed or unpacked form.
func consumeFraming(typ protowire.Type, b []byte, dst *[]Framing) (int, error) {
	if typ == protowire.VarintType {
		var v uint64
		n, err := consumeVarint(typ, b, &v)
		if err != nil {
			return 0, err
		}
		*dst = append(*dst, Framing(int32(v)))
		return n, nil
	}
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return 0, &DecodeError{Kind: DecodeErrorField, Msg: "malformed packed varint", Err: protowire.ParseError(m)}
		}
		*dst = append(*dst, Framing(int32(v)))
		packed = packed[m:]
	}
	return n, nil
}

// consumeMessage decodes an embedded message with unmarshal.
func consumeMessage(typ protowire.Type, b []byte, unmarshal func([]byte) error) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	if err := unmarshal(v); err != nil {
		return 0, err
	}
	return n, nil
}

// Unmarshal decodes a request. Used by servers and tests.
func (r *SatelliteStreamRequest) Unmarshal(data []byte) error {
	*r = SatelliteStreamRequest{}
	return walk("SatelliteStreamRequest", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldRequestSatelliteID:
			return consumeString(typ, b, &r.SatelliteID)
		case fieldRequestStreamID:
			return consumeString(typ, b, &r.StreamID)
		case fieldRequestAcceptedFraming:
			return consumeFraming(typ, b, &r.AcceptedFraming)
		case fieldRequestPlanID:
			return consumeString(typ, b, &r.PlanID)
		case fieldRequestResumeAckID:
			return consumeString(typ, b, &r.ResumeStreamMessageAckID)
		default:
			return skipField(num, typ, b)
		}
	})
}

// Unmarshal decodes a response. When both oneof members appear the last one wins.
func (r *SatelliteStreamResponse) Unmarshal(data []byte) error {
	*r = SatelliteStreamResponse{}
	return walk("SatelliteStreamResponse", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldResponseStreamID:
			return consumeString(typ, b, &r.StreamID)
		case fieldResponseTelemetry:
			batch := &TelemetryBatch{}
			n, err := consumeMessage(typ, b, batch.unmarshal)
			if err != nil {
				return 0, err
			}
			r.Payload = batch
			return n, nil
		case fieldResponseEvent:
			event := &StreamEvent{}
			n, err := consumeMessage(typ, b, event.unmarshal)
			if err != nil {
				return 0, err
			}
			r.Payload = event
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

// unmarshal reads the batch field; the single telemetry field is used only
// when the batch field is absent.
func (t *TelemetryBatch) unmarshal(data []byte) error {
	var single *Frame
	err := walk("ReceiveTelemetryResponse", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldBatchPlanID:
			return consumeString(typ, b, &t.PlanID)
		case fieldBatchSatelliteID:
			return consumeString(typ, b, &t.SatelliteID)
		case fieldBatchGroundStationID:
			return consumeString(typ, b, &t.GroundStationID)
		case fieldBatchMessageAckID:
			return consumeString(typ, b, &t.MessageAckID)
		case fieldBatchTelemetry:
			// Repeated occurrences of a singular message merge.
			if single == nil {
				single = &Frame{}
			}
			return consumeMessage(typ, b, single.unmarshal)
		case fieldBatchFrames:
			var frame Frame
			n, err := consumeMessage(typ, b, frame.unmarshal)
			if err != nil {
				return 0, err
			}
			t.Frames = append(t.Frames, frame)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return err
	}
	if len(t.Frames) == 0 && single != nil {
		t.Frames = []Frame{*single}
	}
	return nil
}

func (f *Frame) unmarshal(data []byte) error {
	return walk("Telemetry", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldFrameFraming:
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			f.Framing = Framing(int32(v))
			return n, err
		case fieldFrameData:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			// Copy out of the receive buffer.
			f.Data = append([]byte(nil), v...)
			return n, nil
		case fieldFrameDownlinkHz:
			return consumeVarint(typ, b, &f.DownlinkFrequencyHz)
		case fieldFrameHeader:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			f.FrameHeader = append([]byte(nil), v...)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func (e *StreamEvent) unmarshal(data []byte) error {
	return walk("StreamEvent", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEventRequestID:
			return consumeString(typ, b, &e.RequestID)
		case fieldEventCommandSent:
			sent := &CommandSent{}
			n, err := consumeMessage(typ, b, sent.unmarshal)
			if err != nil {
				return 0, err
			}
			e.Event = sent
			return n, nil
		case fieldEventPlanMonitored:
			planEvent := &PlanMonitoringEvent{}
			n, err := consumeMessage(typ, b, planEvent.unmarshal)
			if err != nil {
				return 0, err
			}
			e.Event = planEvent
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
}

func (c *CommandSent) unmarshal(data []byte) error {
	return walk("CommandSent", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldCommandSentCommands {
			return skipField(num, typ, b)
		}
		cmd, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		c.Commands = append(c.Commands, append([]byte(nil), cmd...))
		return n, nil
	})
}

// unmarshal flattens plan_id and ground_station_event.plan.status.
func (p *PlanMonitoringEvent) unmarshal(data []byte) error {
	lifecycle := func(data []byte) error {
		return walk("PlanLifecycleEvent", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num != fieldPlanLifecycleStatus {
				return skipField(num, typ, b)
			}
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			p.Status = PlanStatus(int32(v))
			return n, err
		})
	}
	gsEvent := func(data []byte) error {
		return walk("GroundStationEvent", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num != fieldGroundStationEventPlan {
				return skipField(num, typ, b)
			}
			return consumeMessage(typ, b, lifecycle)
		})
	}
	return walk("PlanMonitoringEvent", data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldPlanEventPlanID:
			return consumeString(typ, b, &p.PlanID)
		case fieldPlanEventGroundStation:
			return consumeMessage(typ, b, gsEvent)
		default:
			return skipField(num, typ, b)
		}
	})
}
