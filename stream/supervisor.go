package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/downlink/adapter"
	"github.com/pithecene-io/downlink/auth"
	"github.com/pithecene-io/downlink/checkpoint"
	"github.com/pithecene-io/downlink/log"
	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/transport"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// DefaultPublishTimeout bounds one adapter publish.
const DefaultPublishTimeout = 30 * time.Second

// Plan describes the logical streams of one run.
type Plan struct {
	SatelliteID string
	PlanID      string
	// Count is the number of concurrent logical streams.
	Count int
	// Reconnect enables the reconnect loop for every stream.
	Reconnect bool
	// Hints seed the first attempt of every stream. When zero, each stream
	// resumes from its checkpoint if one exists.
	Hints types.ResumeHints
	// AcceptedFraming restricts the framings the server sends.
	AcceptedFraming []wire.Framing
}

// Validate checks the plan before any stream starts.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.SatelliteID) == "" {
		return errors.New("satellite_id is required")
	}
	if p.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", p.Count)
	}
	return nil
}

// StreamResult is the final result of one logical stream.
type StreamResult struct {
	Index    int                 `json:"index"`
	Outcome  types.StreamOutcome `json:"outcome"`
	State    types.ResumeState   `json:"state"`
	Attempts int                 `json:"attempts"`
	Duration time.Duration       `json:"duration_ns"`
	// Error is the failure message, empty unless Outcome is failed.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// Report aggregates the results of a run, ordered by stream index.
type Report struct {
	RunID    string           `json:"run_id"`
	Results  []StreamResult   `json:"results"`
	Duration time.Duration    `json:"duration_ns"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

// Failed reports whether any stream failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome.IsFailure() {
			return true
		}
	}
	return false
}

// Supervisor runs the logical streams of a plan concurrently.
//
// Every stream gets its own child context under the caller's. A failed
// stream is logged and does not affect its siblings.
type Supervisor struct {
	// Opener is shared by all streams (required).
	Opener transport.Opener
	// Tokens yields one bearer per logical stream (required).
	Tokens auth.TokenSource
	// Sink optionally persists telemetry batches.
	Sink BatchSink
	// Checkpoints optionally persists and seeds resume state.
	Checkpoints checkpoint.Store
	// Adapter optionally receives one completion event per stream.
	Adapter adapter.Adapter
	// PublishTimeout bounds each adapter publish (default 30s).
	PublishTimeout time.Duration
	// MaxAttempts bounds attempts per stream. Zero means unlimited.
	MaxAttempts int
	// RunID identifies the run. Generated when empty.
	RunID string
	// Logger receives run logs. Nil disables logging.
	Logger *log.Logger
	// Collector records run metrics. Nil disables metrics.
	Collector *metrics.Collector
}

// Run starts plan.Count streams and waits for all of them.
// It returns an error only when the plan is invalid.
func (s *Supervisor) Run(ctx context.Context, plan Plan) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if s.Opener == nil || s.Tokens == nil {
		return nil, errors.New("supervisor requires an opener and a token source")
	}

	runID := s.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Nop()
	}

	start := time.Now()
	results := make([]StreamResult, plan.Count)

	var wg sync.WaitGroup
	for i := range plan.Count {
		meta := types.StreamMeta{
			RunID:       runID,
			SatelliteID: plan.SatelliteID,
			PlanID:      plan.PlanID,
			Index:       i,
		}
		streamLogger := logger.With(map[string]any{"stream_index": i})

		wg.Add(1)
		go func() {
			defer wg.Done()

			streamCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			res := s.runStream(streamCtx, plan, meta, streamLogger)
			if res.Err != nil {
				streamLogger.Warn("stream failed", map[string]any{
					"error":    res.Err.Error(),
					"attempts": res.Attempts,
				})
			}
			s.publish(ctx, meta, res, streamLogger)
			results[i] = res
		}()
	}
	wg.Wait()

	report := &Report{
		RunID:    runID,
		Results:  results,
		Duration: time.Since(start),
		Metrics:  s.Collector.Snapshot(),
	}
	logger.Info("run finished", map[string]any{
		"streams":  plan.Count,
		"failed":   report.Failed(),
		"duration": report.Duration.String(),
	})
	return report, nil
}

func (s *Supervisor) runStream(ctx context.Context, plan Plan, meta types.StreamMeta, logger *log.Logger) (res StreamResult) {
	start := time.Now()
	s.Collector.IncStreamStarted()

	res.Index = meta.Index
	defer func() {
		res.Duration = time.Since(start)
		s.Collector.RecordStreamOutcome(string(res.Outcome))
	}()

	token, err := s.Tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome = types.StreamCancelled
			return res
		}
		res.Outcome = types.StreamFailed
		res.Err = fmt.Errorf("fetch token: %w", err)
		res.Error = res.Err.Error()
		return res
	}

	hints := s.initialHints(plan, meta, logger)

	loop := &Reconnector{
		Session: &Session{
			Opener:          s.Opener,
			Sink:            s.Sink,
			Logger:          logger,
			Collector:       s.Collector,
			AcceptedFraming: plan.AcceptedFraming,
		},
		Reconnect:   plan.Reconnect,
		MaxAttempts: s.MaxAttempts,
		Checkpoints: s.Checkpoints,
		Logger:      logger,
		Collector:   s.Collector,
	}

	out, err := loop.Run(ctx, Request{Meta: meta, Token: token, Hints: hints})
	res.State = out.State
	res.Attempts = out.Attempts
	if err != nil {
		res.Outcome = types.StreamFailed
		res.Err = err
		res.Error = err.Error()
		return res
	}
	res.Outcome = types.StreamOutcomeFor(out.Outcome)
	return res
}

// initialHints returns the plan's hints, or the stream's checkpoint when the
// plan carries none.
func (s *Supervisor) initialHints(plan Plan, meta types.StreamMeta, logger *log.Logger) types.ResumeHints {
	if !plan.Hints.IsZero() || s.Checkpoints == nil {
		return plan.Hints
	}

	key := meta.CheckpointKey()
	state, ok, err := s.Checkpoints.Load(key)
	if err != nil {
		logger.Warn("checkpoint load failed, starting fresh", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return types.ResumeHints{}
	}
	if !ok {
		return types.ResumeHints{}
	}
	logger.Info("resuming from checkpoint", map[string]any{
		"key":           key,
		"stream_id":     state.StreamID,
		"resume_ack_id": state.ResumeAckID,
	})
	return state.Hints()
}

// publish notifies the adapter. It runs even when ctx was cancelled so a
// stopped run still reports its streams.
func (s *Supervisor) publish(ctx context.Context, meta types.StreamMeta, res StreamResult, logger *log.Logger) {
	if s.Adapter == nil {
		return
	}

	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	event := &adapter.StreamCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeStreamCompleted,
		RunID:           meta.RunID,
		StreamIndex:     meta.Index,
		SatelliteID:     meta.SatelliteID,
		PlanID:          meta.PlanID,
		Outcome:         string(res.Outcome),
		Error:           res.Error,
		StreamID:        res.State.StreamID,
		ResumeAckID:     res.State.ResumeAckID,
		Frames:          res.State.Frames,
		Bytes:           res.State.Bytes,
		Attempts:        res.Attempts,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      res.Duration.Milliseconds(),
	}
	if err := s.Adapter.Publish(pubCtx, event); err != nil {
		logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
	}
}
