package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSatelliteID is returned when a setup request has no satellite id.
var ErrMissingSatelliteID = errors.New("wire: satellite_id is required")

// Message is implemented by every type carried on the stream call.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// SatelliteStreamRequest is the setup message sent first on every physical attempt.
// Empty hint fields mean "start fresh".
type SatelliteStreamRequest struct {
	// SatelliteID selects the satellite (required).
	SatelliteID string
	// StreamID is the resume hint naming a previous physical stream.
	StreamID string
	// PlanID optionally filters telemetry to one plan.
	PlanID string
	// ResumeStreamMessageAckID is the resume hint naming the last processed batch.
	ResumeStreamMessageAckID string
	// AcceptedFraming restricts the framings the server sends. Empty accepts all.
	AcceptedFraming []Framing
}

// Validate checks the setup message before it is sent.
func (r *SatelliteStreamRequest) Validate() error {
	if strings.TrimSpace(r.SatelliteID) == "" {
		return ErrMissingSatelliteID
	}
	return nil
}

// Payload is the closed sum of response payloads: *TelemetryBatch or *StreamEvent.
// A nil Payload is the empty case.
type Payload interface {
	isPayload()
}

// SatelliteStreamResponse is one inbound message on the stream call.
type SatelliteStreamResponse struct {
	// StreamID echoes the server-assigned identity of the physical stream.
	StreamID string
	// Payload is nil, *TelemetryBatch or *StreamEvent.
	Payload Payload
}

// Telemetry returns the batch payload, or nil.
func (r *SatelliteStreamResponse) Telemetry() *TelemetryBatch {
	b, _ := r.Payload.(*TelemetryBatch)
	return b
}

// Event returns the stream event payload, or nil.
func (r *SatelliteStreamResponse) Event() *StreamEvent {
	e, _ := r.Payload.(*StreamEvent)
	return e
}

// Framing is the framing of a telemetry payload as delivered by the ground station.
type Framing int32

// Framing values.
const (
	FramingBitstream    Framing = 0
	FramingAX25         Framing = 1
	FramingIQ           Framing = 2
	FramingImagePNG     Framing = 3
	FramingImageJPEG    Framing = 4
	FramingFreeTextUTF8 Framing = 5
)

var framingNames = map[Framing]string{
	FramingBitstream:    "BITSTREAM",
	FramingAX25:         "AX25",
	FramingIQ:           "IQ",
	FramingImagePNG:     "IMAGE_PNG",
	FramingImageJPEG:    "IMAGE_JPEG",
	FramingFreeTextUTF8: "FREE_TEXT_UTF8",
}

func (f Framing) String() string {
	if name, ok := framingNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FRAMING_%d", int32(f))
}

// ParseFraming parses a framing name, case-insensitively.
func ParseFraming(s string) (Framing, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for f, name := range framingNames {
		if name == want {
			return f, nil
		}
	}
	return 0, fmt.Errorf("wire: unknown framing %q", s)
}

// Frame is one Telemetry message: a single payload with its framing.
type Frame struct {
	Framing Framing
	Data    []byte
	// FrameHeader is the header the ground station stripped from Data, if any.
	FrameHeader         []byte
	DownlinkFrequencyHz uint64
}

// TelemetryBatch is a batch of telemetry frames acknowledged by one ack id.
type TelemetryBatch struct {
	PlanID          string
	SatelliteID     string
	GroundStationID string
	// MessageAckID identifies the batch for resumption.
	MessageAckID string
	// Frames is ordered as received by the ground station.
	Frames []Frame
}

func (*TelemetryBatch) isPayload() {}

// ByteCount returns the summed payload length of all frames.
func (b *TelemetryBatch) ByteCount() uint64 {
	var n uint64
	for _, f := range b.Frames {
		n += uint64(len(f.Data))
	}
	return n
}

// IsEndOfStream reports whether the batch is the end-of-stream sentinel:
// exactly one frame whose payload is empty.
func (b *TelemetryBatch) IsEndOfStream() bool {
	return len(b.Frames) == 1 && b.ByteCount() == 0
}

// Event is the closed sum of stream events: *CommandSent or *PlanMonitoringEvent.
// A nil Event is an anomaly.
type Event interface {
	isEvent()
}

// StreamEvent carries an observational event about the stream.
type StreamEvent struct {
	RequestID string
	// Event is nil, *CommandSent or *PlanMonitoringEvent.
	Event Event
}

func (*StreamEvent) isPayload() {}

// CommandSent reports that commands were transmitted by the ground station.
type CommandSent struct {
	Commands [][]byte
}

func (*CommandSent) isEvent() {}

// PlanStatus is the lifecycle status carried by a plan lifecycle event.
type PlanStatus int32

// PlanStatus values.
const (
	PlanStatusUnknown   PlanStatus = 0
	PlanStatusPreparing PlanStatus = 1
	PlanStatusExecuting PlanStatus = 2
	PlanStatusCompleted PlanStatus = 3
	PlanStatusFailed    PlanStatus = 4
)

func (s PlanStatus) String() string {
	switch s {
	case PlanStatusUnknown:
		return "UNKNOWN"
	case PlanStatusPreparing:
		return "PREPARING"
	case PlanStatusExecuting:
		return "EXECUTING"
	case PlanStatusCompleted:
		return "COMPLETED"
	case PlanStatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATUS_%d", int32(s))
	}
}

// PlanMonitoringEvent reports a plan lifecycle change seen by the ground station.
// Status is read from ground_station_event.plan.status; events of other kinds
// leave it PlanStatusUnknown.
type PlanMonitoringEvent struct {
	PlanID string
	Status PlanStatus
}

func (*PlanMonitoringEvent) isEvent() {}

// Verify message types implement Message.
var (
	_ Message = (*SatelliteStreamRequest)(nil)
	_ Message = (*SatelliteStreamResponse)(nil)
)
