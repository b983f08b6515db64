// Package stream drives resumable telemetry streams.
//
// A Session runs one physical attempt: it opens the duplex call, sends the
// setup message carrying the resume hints and folds inbound messages into a
// ResumeState until the attempt terminates. A Reconnector chains attempts of
// one logical stream, and a Supervisor runs several logical streams
// concurrently.
//
// Attempt state machine:
//
//	Connecting -> Open -> Receiving -> {Completed | Closed | Errored | Cancelled}
//
// Only Completed ends a reconnecting logical stream successfully.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/downlink/log"
	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/transport"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// Attempt describes one physical attempt.
type Attempt struct {
	// Meta identifies the logical stream.
	Meta types.StreamMeta
	// Token is the bearer credential, without the "Bearer " prefix.
	Token string
	// Hints are sent in the setup message. Zero hints start fresh.
	Hints types.ResumeHints
	// Number is the 1-based attempt number within the logical stream.
	Number int
}

// AttemptResult is the terminal outcome and state of one attempt.
type AttemptResult struct {
	Outcome types.AttemptOutcome
	// State counts only this attempt's traffic. Its StreamID and ResumeAckID
	// start from the attempt's hints.
	State types.ResumeState
}

// BatchSink persists telemetry batches. It is called before the batch is
// folded into the resume state, so the ack id never moves past data the sink
// has not accepted.
type BatchSink interface {
	WriteBatch(ctx context.Context, meta types.StreamMeta, streamID string, batch *wire.TelemetryBatch) error
}

// InitError reports an attempt that failed before receiving.
type InitError struct {
	// Op is "setup", "authorize" or "open".
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ReceiveError reports a transport error that ended an attempt.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("stream receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// SinkError reports a batch the sink refused.
type SinkError struct {
	AckID string
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("stream sink: batch %s: %v", e.AckID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Session runs physical attempts over an Opener.
type Session struct {
	// Opener opens the duplex call (required).
	Opener transport.Opener
	// Sink optionally persists telemetry batches.
	Sink BatchSink
	// Logger receives attempt logs. Nil disables logging.
	Logger *log.Logger
	// Collector records attempt metrics. Nil disables metrics.
	Collector *metrics.Collector
	// AcceptedFraming is sent in every setup message. Empty accepts all framings.
	AcceptedFraming []wire.Framing
}

type received struct {
	resp *wire.SatelliteStreamResponse
	err  error
}

// Run drives one attempt until it terminates.
//
// Initialization failures return an *InitError and a zero result. A context
// cancelled before or during open yields a cancelled result with a nil error.
// A transport error on receive returns the errored result with a
// *ReceiveError; a refused batch returns it with a *SinkError. Completed,
// closed and cancelled attempts return a nil error.
func (s *Session) Run(ctx context.Context, a Attempt) (AttemptResult, error) {
	logger := s.logger().With(map[string]any{"attempt": a.Number})

	setup := &wire.SatelliteStreamRequest{
		SatelliteID:              a.Meta.SatelliteID,
		PlanID:                   a.Meta.PlanID,
		StreamID:                 a.Hints.StreamID,
		ResumeStreamMessageAckID: a.Hints.ResumeAckID,
		AcceptedFraming:          s.AcceptedFraming,
	}
	if err := setup.Validate(); err != nil {
		return AttemptResult{}, &InitError{Op: "setup", Err: err}
	}

	s.Collector.IncAttemptStarted()
	if ctx.Err() != nil {
		return s.cancelledBeforeOpen(a, logger), nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	authCtx, err := transport.WithBearer(streamCtx, a.Token)
	if err != nil {
		s.Collector.IncOpenFailure()
		return AttemptResult{}, &InitError{Op: "authorize", Err: err}
	}

	stream, err := s.Opener.OpenStream(authCtx)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelledBeforeOpen(a, logger), nil
		}
		s.Collector.IncOpenFailure()
		return AttemptResult{}, &InitError{Op: "open", Err: err}
	}
	logger.Info("stream opened", map[string]any{
		"stream_id":     a.Hints.StreamID,
		"resume_ack_id": a.Hints.ResumeAckID,
	})

	if err := stream.Send(setup); err != nil {
		// The server may ignore a session whose setup never arrived; receive anyway.
		s.Collector.IncSetupSendFailure()
		logger.Error("failed to send setup message", map[string]any{"error": err.Error()})
	}

	recvCh := make(chan received)
	go func() {
		for {
			resp, err := stream.Recv()
			select {
			case recvCh <- received{resp: resp, err: err}:
			case <-streamCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	state := types.NewResumeState(a.Hints)
	observe := s.observer(logger)

	finish := func(outcome types.AttemptOutcome, err error) (AttemptResult, error) {
		s.Collector.RecordAttemptOutcome(string(outcome))
		fields := map[string]any{
			"outcome":       string(outcome),
			"frames":        state.Frames,
			"bytes":         state.Bytes,
			"stream_id":     state.StreamID,
			"resume_ack_id": state.ResumeAckID,
		}
		if err != nil {
			fields["error"] = err.Error()
			logger.Error("stream attempt ended", fields)
		} else {
			logger.Info("stream attempt ended", fields)
		}
		return AttemptResult{Outcome: outcome, State: state}, err
	}

	for {
		if ctx.Err() != nil {
			return finish(types.AttemptCancelled, nil)
		}

		var msg received
		select {
		case <-ctx.Done():
			return finish(types.AttemptCancelled, nil)
		case msg = <-recvCh:
		}

		// Cancellation wins when both were ready.
		if ctx.Err() != nil {
			return finish(types.AttemptCancelled, nil)
		}

		if msg.err != nil {
			if errors.Is(msg.err, io.EOF) {
				return finish(types.AttemptClosed, nil)
			}
			return finish(types.AttemptErrored, &ReceiveError{Err: msg.err})
		}

		if batch := msg.resp.Telemetry(); batch != nil {
			if s.Sink != nil {
				if err := s.Sink.WriteBatch(ctx, a.Meta, msg.resp.StreamID, batch); err != nil {
					if ctx.Err() != nil {
						return finish(types.AttemptCancelled, nil)
					}
					return finish(types.AttemptErrored, &SinkError{AckID: batch.MessageAckID, Err: err})
				}
			}
			s.Collector.RecordBatch(uint64(len(batch.Frames)), batch.ByteCount())
			logger.Debug("telemetry batch", map[string]any{
				"message_ack_id":    batch.MessageAckID,
				"ground_station_id": batch.GroundStationID,
				"frames":            len(batch.Frames),
				"bytes":             batch.ByteCount(),
			})
		}

		state = OnMessage(state, msg.resp, observe)
		if state.Complete {
			return finish(types.AttemptCompleted, nil)
		}
	}
}

// cancelledBeforeOpen is the result of an attempt that never reached the
// receive loop because its context ended first.
func (s *Session) cancelledBeforeOpen(a Attempt, logger *log.Logger) AttemptResult {
	s.Collector.RecordAttemptOutcome(string(types.AttemptCancelled))
	logger.Info("stream attempt cancelled before open", map[string]any{
		"stream_id":     a.Hints.StreamID,
		"resume_ack_id": a.Hints.ResumeAckID,
	})
	return AttemptResult{Outcome: types.AttemptCancelled, State: types.NewResumeState(a.Hints)}
}

func (s *Session) logger() *log.Logger {
	if s.Logger == nil {
		return log.Nop()
	}
	return s.Logger
}

// observer logs stream events and counts them.
func (s *Session) observer(logger *log.Logger) EventObserver {
	return func(kind EventKind, event *wire.StreamEvent) {
		switch e := event.Event.(type) {
		case *wire.CommandSent:
			s.Collector.RecordEvent(string(kind))
			logger.Info("commands sent", map[string]any{
				"request_id": event.RequestID,
				"commands":   len(e.Commands),
			})
		case *wire.PlanMonitoringEvent:
			s.Collector.RecordEvent(string(kind))
			logger.Info("plan monitoring event", map[string]any{
				"request_id": event.RequestID,
				"plan_id":    e.PlanID,
				"status":     e.Status.String(),
			})
		default:
			s.Collector.IncAnomaly()
			logger.Warn("stream event without payload", map[string]any{
				"request_id": event.RequestID,
			})
		}
	}
}
