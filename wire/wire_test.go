package wire

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestSatelliteStreamRequest_Encoding(t *testing.T) {
	req := &SatelliteStreamRequest{SatelliteID: "98"}

	got, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// field 1, wire type 2 (0x0a), length 2, "98"
	want := []byte{0x0a, 0x02, '9', '8'}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal = %x, want %x", got, want)
	}
}

func TestSatelliteStreamRequest_RoundTripHints(t *testing.T) {
	req := &SatelliteStreamRequest{
		SatelliteID:              "98",
		StreamID:                 "S",
		PlanID:                   "plan-1",
		ResumeStreamMessageAckID: "m1",
		AcceptedFraming:          []Framing{FramingAX25, FramingBitstream},
	}

	data, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded SatelliteStreamRequest
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.SatelliteID != "98" || decoded.StreamID != "S" || decoded.PlanID != "plan-1" || decoded.ResumeStreamMessageAckID != "m1" {
		t.Errorf("decoded = %+v, want %+v", decoded, *req)
	}
	if !slices.Equal(decoded.AcceptedFraming, req.AcceptedFraming) {
		t.Errorf("AcceptedFraming = %v, want %v", decoded.AcceptedFraming, req.AcceptedFraming)
	}
}

func TestSatelliteStreamRequest_FieldNumbers(t *testing.T) {
	req := &SatelliteStreamRequest{
		PlanID:                   "p",
		ResumeStreamMessageAckID: "m",
		AcceptedFraming:          []Framing{FramingAX25},
	}

	got, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := []byte{
		0x22, 0x01, 0x01, // field 4 accepted_framing, packed [AX25]
		0x3a, 0x01, 'p', // field 7 plan_id
		0x42, 0x01, 'm', // field 8 resume_stream_message_ack_id
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal = %x, want %x", got, want)
	}
}

func TestSatelliteStreamRequest_UnpackedFraming(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, fieldRequestAcceptedFraming, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(FramingIQ))
	data = protowire.AppendTag(data, fieldRequestAcceptedFraming, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(FramingAX25))

	var decoded SatelliteStreamRequest
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := []Framing{FramingIQ, FramingAX25}
	if !slices.Equal(decoded.AcceptedFraming, want) {
		t.Errorf("AcceptedFraming = %v, want %v", decoded.AcceptedFraming, want)
	}
}

func TestParseFraming(t *testing.T) {
	f, err := ParseFraming(" ax25 ")
	if err != nil {
		t.Fatalf("ParseFraming failed: %v", err)
	}
	if f != FramingAX25 || f.String() != "AX25" {
		t.Errorf("ParseFraming = %v", f)
	}
	if _, err := ParseFraming("morse"); err == nil {
		t.Error("expected error for unknown framing")
	}
	if got := Framing(42).String(); got != "FRAMING_42" {
		t.Errorf("String() = %q", got)
	}
}

func TestSatelliteStreamRequest_Validate(t *testing.T) {
	if err := (&SatelliteStreamRequest{}).Validate(); !errors.Is(err, ErrMissingSatelliteID) {
		t.Errorf("expected ErrMissingSatelliteID, got %v", err)
	}
	if err := (&SatelliteStreamRequest{SatelliteID: "  "}).Validate(); !errors.Is(err, ErrMissingSatelliteID) {
		t.Errorf("expected ErrMissingSatelliteID for blank id, got %v", err)
	}
	if err := (&SatelliteStreamRequest{SatelliteID: "98"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSatelliteStreamResponse_TelemetryRoundTrip(t *testing.T) {
	resp := &SatelliteStreamResponse{
		StreamID: "stream-1",
		Payload: &TelemetryBatch{
			PlanID:          "plan-1",
			SatelliteID:     "98",
			GroundStationID: "gs-1",
			MessageAckID:    "m1",
			Frames: []Frame{
				{Framing: FramingAX25, Data: []byte("abc"), DownlinkFrequencyHz: 437_000_000},
				{Data: []byte("defg"), FrameHeader: []byte{0x7e}},
			},
		},
	}

	data, err := resp.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded SatelliteStreamResponse
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.StreamID != "stream-1" {
		t.Errorf("StreamID = %q, want stream-1", decoded.StreamID)
	}
	batch := decoded.Telemetry()
	if batch == nil {
		t.Fatalf("expected telemetry payload, got %T", decoded.Payload)
	}
	if batch.MessageAckID != "m1" || batch.GroundStationID != "gs-1" {
		t.Errorf("batch = %+v", batch)
	}
	if len(batch.Frames) != 2 || string(batch.Frames[1].Data) != "defg" {
		t.Fatalf("frames = %+v", batch.Frames)
	}
	if batch.Frames[0].Framing != FramingAX25 || batch.Frames[0].DownlinkFrequencyHz != 437_000_000 {
		t.Errorf("frame 0 = %+v", batch.Frames[0])
	}
	if !bytes.Equal(batch.Frames[1].FrameHeader, []byte{0x7e}) {
		t.Errorf("frame 1 header = %x", batch.Frames[1].FrameHeader)
	}
	if batch.ByteCount() != 7 {
		t.Errorf("ByteCount = %d, want 7", batch.ByteCount())
	}
}

func TestTelemetryBatch_SentinelSurvivesEncoding(t *testing.T) {
	resp := &SatelliteStreamResponse{
		StreamID: "stream-1",
		Payload:  &TelemetryBatch{MessageAckID: "m2", Frames: []Frame{{}}},
	}

	data, err := resp.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded SatelliteStreamResponse
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	batch := decoded.Telemetry()
	if batch == nil {
		t.Fatal("expected telemetry payload")
	}
	if len(batch.Frames) != 1 {
		t.Fatalf("empty frame lost on the wire: %d frames", len(batch.Frames))
	}
	if !batch.IsEndOfStream() {
		t.Error("decoded batch should be the end-of-stream sentinel")
	}
}

func TestTelemetryBatch_SingleTelemetryField(t *testing.T) {
	frame := (&Frame{Framing: FramingBitstream, Data: []byte("xyz")}).appendTo(nil)
	var inner []byte
	inner = appendMessage(inner, fieldBatchTelemetry, frame)
	inner = appendString(inner, fieldBatchMessageAckID, "m7")
	inner = appendString(inner, fieldBatchPlanID, "plan-1")
	data := appendMessage(nil, fieldResponseTelemetry, inner)

	var decoded SatelliteStreamResponse
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	batch := decoded.Telemetry()
	if batch == nil {
		t.Fatal("expected telemetry payload")
	}
	if len(batch.Frames) != 1 || string(batch.Frames[0].Data) != "xyz" {
		t.Errorf("frames = %+v", batch.Frames)
	}
	if batch.MessageAckID != "m7" || batch.PlanID != "plan-1" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestTelemetryBatch_BatchFieldWinsOverSingle(t *testing.T) {
	var inner []byte
	inner = appendMessage(inner, fieldBatchTelemetry, (&Frame{Data: []byte("old")}).appendTo(nil))
	inner = appendMessage(inner, fieldBatchFrames, (&Frame{Data: []byte("a")}).appendTo(nil))
	inner = appendMessage(inner, fieldBatchFrames, (&Frame{Data: []byte("b")}).appendTo(nil))

	var batch TelemetryBatch
	if err := batch.unmarshal(inner); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(batch.Frames) != 2 || batch.ByteCount() != 2 {
		t.Errorf("frames = %+v", batch.Frames)
	}
}

func TestTelemetryBatch_IsEndOfStream(t *testing.T) {
	tests := []struct {
		name   string
		frames []Frame
		want   bool
	}{
		{"no frames", nil, false},
		{"one empty frame", []Frame{{}}, true},
		{"one non-empty frame", []Frame{{Data: []byte{0}}}, false},
		{"two empty frames", []Frame{{}, {}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &TelemetryBatch{Frames: tt.frames}
			if got := b.IsEndOfStream(); got != tt.want {
				t.Errorf("IsEndOfStream() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSatelliteStreamResponse_EventRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"command sent", &CommandSent{Commands: [][]byte{[]byte("cmd-1"), []byte("cmd-2")}}},
		{"plan monitoring", &PlanMonitoringEvent{PlanID: "plan-1", Status: PlanStatusExecuting}},
		{"empty event", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &SatelliteStreamResponse{
				StreamID: "stream-1",
				Payload:  &StreamEvent{RequestID: "req-1", Event: tt.event},
			}

			data, err := resp.Marshal()
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			var decoded SatelliteStreamResponse
			if err := decoded.Unmarshal(data); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			event := decoded.Event()
			if event == nil {
				t.Fatalf("expected stream event payload, got %T", decoded.Payload)
			}
			if event.RequestID != "req-1" {
				t.Errorf("RequestID = %q, want req-1", event.RequestID)
			}

			switch want := tt.event.(type) {
			case nil:
				if event.Event != nil {
					t.Errorf("expected no event variant, got %T", event.Event)
				}
			case *CommandSent:
				got, ok := event.Event.(*CommandSent)
				if !ok {
					t.Fatalf("expected *CommandSent, got %T", event.Event)
				}
				if len(got.Commands) != len(want.Commands) {
					t.Errorf("commands = %d, want %d", len(got.Commands), len(want.Commands))
				}
			case *PlanMonitoringEvent:
				got, ok := event.Event.(*PlanMonitoringEvent)
				if !ok {
					t.Fatalf("expected *PlanMonitoringEvent, got %T", event.Event)
				}
				if *got != *want {
					t.Errorf("event = %+v, want %+v", got, want)
				}
			}
		})
	}
}

func TestPlanMonitoringEvent_NestedStatus(t *testing.T) {
	var lifecycle []byte
	lifecycle = protowire.AppendTag(lifecycle, fieldPlanLifecycleStatus, protowire.VarintType)
	lifecycle = protowire.AppendVarint(lifecycle, uint64(PlanStatusCompleted))
	gsEvent := appendMessage(nil, fieldGroundStationEventPlan, lifecycle)
	var inner []byte
	inner = appendString(inner, fieldPlanEventPlanID, "plan-9")
	inner = appendMessage(inner, fieldPlanEventGroundStation, gsEvent)

	var event PlanMonitoringEvent
	if err := event.unmarshal(inner); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.PlanID != "plan-9" || event.Status != PlanStatusCompleted {
		t.Errorf("event = %+v", event)
	}
	if event.Status.String() != "COMPLETED" {
		t.Errorf("Status.String() = %q", event.Status.String())
	}
}

func TestSatelliteStreamResponse_EmptyPayload(t *testing.T) {
	data, err := (&SatelliteStreamResponse{StreamID: "stream-1"}).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded SatelliteStreamResponse
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Payload != nil {
		t.Errorf("expected nil payload, got %T", decoded.Payload)
	}
	if decoded.Telemetry() != nil || decoded.Event() != nil {
		t.Error("accessors should return nil for empty payload")
	}
}

func TestSatelliteStreamResponse_SkipsUnknownFields(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 12345)
	data = protowire.AppendTag(data, fieldResponseStreamID, protowire.BytesType)
	data = protowire.AppendString(data, "stream-9")

	var decoded SatelliteStreamResponse
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.StreamID != "stream-9" {
		t.Errorf("StreamID = %q, want stream-9", decoded.StreamID)
	}
}

func TestSatelliteStreamResponse_MalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind DecodeErrorKind
	}{
		{
			name: "truncated tag",
			data: []byte{0x80},
			kind: DecodeErrorTag,
		},
		{
			name: "truncated length",
			data: []byte{0x0a, 0x05, 'a'},
			kind: DecodeErrorField,
		},
		{
			name: "wrong wire type for stream id",
			data: []byte{0x08, 0x01},
			kind: DecodeErrorWireType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded SatelliteStreamResponse
			err := decoded.Unmarshal(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
			if decodeErr.Kind != tt.kind {
				t.Errorf("Kind = %d, want %d", decodeErr.Kind, tt.kind)
			}
			if !IsDecodeError(err) {
				t.Error("IsDecodeError should be true")
			}
		})
	}
}

func TestCodec(t *testing.T) {
	c := Codec{}
	if c.Name() != "proto" {
		t.Errorf("Name() = %q, want proto", c.Name())
	}

	data, err := c.Marshal(&SatelliteStreamRequest{SatelliteID: "98", PlanID: "p"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var req SatelliteStreamRequest
	if err := c.Unmarshal(data, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.SatelliteID != "98" || req.PlanID != "p" {
		t.Errorf("req = %+v", req)
	}

	if _, err := c.Marshal("not a message"); err == nil {
		t.Error("expected error marshaling non-message")
	}
	if err := c.Unmarshal(data, new(int)); err == nil {
		t.Error("expected error unmarshaling into non-message")
	}
}
