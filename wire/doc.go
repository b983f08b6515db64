// Package wire implements the messages exchanged on the satellite stream call
// and their protocol-buffer wire encoding.
//
// The client speaks one bidirectional call:
//
//	/stellarstation.api.v1.StellarStationService/OpenSatelliteStream
//
// Messages are hand-encoded with protowire; no generated stubs are needed.
// Field numbers are transcribed from the published StellarStation API
// (github.com/infostellarinc/stellarstation-api, files
// api/src/main/proto/stellarstation/api/v1/stellarstation.proto and
// monitoring/monitoring.proto). Only the fields this client reads or writes
// are modeled:
//
//	SatelliteStreamRequest
//	  1 satellite_id                  string
//	  2 stream_id                     string
//	  4 accepted_framing              repeated Framing (packed)
//	  7 plan_id                       string
//	  8 resume_stream_message_ack_id  string
//
//	SatelliteStreamResponse
//	  1 stream_id                     string
//	  2 receive_telemetry_response    ReceiveTelemetryResponse  (oneof response)
//	  3 stream_event                  StreamEvent               (oneof response)
//
//	ReceiveTelemetryResponse
//	  1 telemetry                     Telemetry (single, superseded by batch)
//	  2 message_ack_id                string
//	  3 ground_station_id             string
//	  4 satellite_id                  string
//	  5 plan_id                       string
//	  6 batch                         repeated Telemetry
//
//	Telemetry
//	  1 framing                       Framing
//	  2 data                          bytes
//	  5 downlink_frequency_hz         uint64
//	  6 frame_header                  bytes
//
//	StreamEvent
//	  1 request_id                    string
//	  2 command_sent                  CommandSent          (oneof event)
//	  3 plan_monitoring_event         PlanMonitoringEvent  (oneof event)
//
//	CommandSent
//	  1 commands                      repeated bytes
//
//	PlanMonitoringEvent
//	  1 plan_id                       string
//	  2 ground_station_event          GroundStationEvent
//	      2 plan                      PlanLifecycleEvent
//	          1 status                PlanLifecycleEvent.Status
//
// Unknown fields are skipped on decode. Proto3 defaults are omitted on
// encode; embedded messages are always emitted so that an empty frame or an
// empty batch keeps its presence on the wire. A response carrying only the
// single telemetry field decodes as a one-frame batch.
package wire
