package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/downlink/checkpoint"
	"github.com/pithecene-io/downlink/log"
	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/types"
)

// ErrAttemptsExhausted is returned when MaxAttempts closed attempts ran
// without reaching end-of-stream.
var ErrAttemptsExhausted = errors.New("stream: reconnect attempts exhausted")

// Request describes one logical stream.
type Request struct {
	Meta types.StreamMeta
	// Token is fetched once per logical stream and reused for every attempt.
	Token string
	// Hints seed the first attempt only.
	Hints types.ResumeHints
}

// LoopResult is the outcome of a logical stream.
type LoopResult struct {
	// Outcome is the outcome of the last attempt.
	Outcome types.AttemptOutcome
	// State accumulates counters over all attempts and carries the identity
	// fields of the last one.
	State types.ResumeState
	// Attempts is the number of attempts that reached the receive loop.
	Attempts int
}

// Reconnector chains attempts of one logical stream.
//
// Each attempt resumes from the hints of the previous one. A closed attempt
// is followed immediately by another; completed and cancelled attempts end
// the loop, and errors end it with the error.
type Reconnector struct {
	// Session runs each attempt (required).
	Session *Session
	// Reconnect enables reconnecting after a closed attempt. When false the
	// loop runs exactly one attempt.
	Reconnect bool
	// MaxAttempts bounds attempts per logical stream. Zero means unlimited.
	MaxAttempts int
	// Checkpoints optionally persists state after every attempt.
	Checkpoints checkpoint.Store
	// Logger receives loop logs. Nil disables logging.
	Logger *log.Logger
	// Collector records checkpoint failures. Nil disables metrics.
	Collector *metrics.Collector
}

// Run drives attempts until the logical stream terminates.
// The returned result is valid even when err is non-nil.
func (r *Reconnector) Run(ctx context.Context, req Request) (LoopResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Nop()
	}

	acc := types.NewResumeState(req.Hints)
	hints := req.Hints
	result := LoopResult{State: acc}

	if err := req.Meta.Validate(); err != nil {
		return result, &InitError{Op: "setup", Err: err}
	}

	for n := 1; ; n++ {
		if n > 1 && ctx.Err() != nil {
			logger.Info("stream cancelled between attempts", map[string]any{"attempts": n - 1})
			result.Outcome = types.AttemptCancelled
			return result, nil
		}

		attempt, err := r.Session.Run(ctx, Attempt{
			Meta:   req.Meta,
			Token:  req.Token,
			Hints:  hints,
			Number: n,
		})

		var initErr *InitError
		if errors.As(err, &initErr) {
			// Nothing was received, so there is nothing to checkpoint.
			return result, err
		}

		result.Attempts = n
		result.Outcome = attempt.Outcome
		acc = acc.Accumulate(attempt.State)
		result.State = acc
		hints = attempt.State.Hints()

		r.checkpoint(req.Meta, attempt.Outcome, acc, logger)

		if err != nil {
			return result, err
		}

		switch attempt.Outcome {
		case types.AttemptCompleted, types.AttemptCancelled:
			return result, nil
		case types.AttemptClosed:
			if !r.Reconnect {
				return result, nil
			}
			if r.MaxAttempts > 0 && n >= r.MaxAttempts {
				return result, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, n)
			}
			logger.Info("stream closed, reconnecting", map[string]any{
				"attempt":       n + 1,
				"stream_id":     hints.StreamID,
				"resume_ack_id": hints.ResumeAckID,
			})
		default:
			return result, fmt.Errorf("stream: unexpected attempt outcome %q", attempt.Outcome)
		}
	}
}

// checkpoint saves acc after an attempt, or deletes the checkpoint once the
// stream completed. Failures are logged and never end the stream.
func (r *Reconnector) checkpoint(meta types.StreamMeta, outcome types.AttemptOutcome, acc types.ResumeState, logger *log.Logger) {
	if r.Checkpoints == nil {
		return
	}
	key := meta.CheckpointKey()

	var err error
	if outcome == types.AttemptCompleted {
		err = r.Checkpoints.Delete(key)
	} else {
		err = r.Checkpoints.Save(key, acc)
	}
	if err != nil {
		r.Collector.IncCheckpointSaveFailure()
		logger.Warn("checkpoint update failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}
