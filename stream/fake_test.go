package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc/metadata"

	"github.com/pithecene-io/downlink/adapter"
	"github.com/pithecene-io/downlink/transport"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// script drives one fake physical stream.
type script struct {
	msgs []*wire.SatelliteStreamResponse
	// end is returned after msgs. Nil keeps the stream open until cancelled.
	end     error
	sendErr error
	openErr error
}

func closed(msgs ...*wire.SatelliteStreamResponse) script {
	return script{msgs: msgs, end: io.EOF}
}

func hanging(msgs ...*wire.SatelliteStreamResponse) script {
	return script{msgs: msgs}
}

func batch(streamID, ackID string, sizes ...int) *wire.SatelliteStreamResponse {
	frames := make([]wire.Frame, len(sizes))
	for i, n := range sizes {
		if n > 0 {
			frames[i] = wire.Frame{Data: bytes.Repeat([]byte{0xab}, n)}
		}
	}
	return &wire.SatelliteStreamResponse{
		StreamID: streamID,
		Payload:  &wire.TelemetryBatch{MessageAckID: ackID, Frames: frames},
	}
}

// sentinel is the end-of-stream batch: one frame, no payload.
func sentinel(streamID, ackID string) *wire.SatelliteStreamResponse {
	return batch(streamID, ackID, 0)
}

func event(e wire.Event) *wire.SatelliteStreamResponse {
	return &wire.SatelliteStreamResponse{StreamID: "S", Payload: &wire.StreamEvent{RequestID: "req", Event: e}}
}

// opened records one OpenStream call.
type opened struct {
	authorization string
	setup         *wire.SatelliteStreamRequest
}

// fakeOpener hands out scripted streams in order.
type fakeOpener struct {
	mu      sync.Mutex
	scripts []script
	// fallback is used once scripts run out.
	fallback *script
	opens    []*opened
	openedCh chan struct{}
}

func newFakeOpener(scripts ...script) *fakeOpener {
	return &fakeOpener{scripts: scripts, openedCh: make(chan struct{}, 64)}
}

func (o *fakeOpener) OpenStream(ctx context.Context) (transport.Stream, error) {
	o.mu.Lock()
	var sc script
	switch {
	case len(o.scripts) > 0:
		sc = o.scripts[0]
		o.scripts = o.scripts[1:]
	case o.fallback != nil:
		sc = *o.fallback
	default:
		o.mu.Unlock()
		return nil, errors.New("fake opener: no script left")
	}
	if sc.openErr != nil {
		o.mu.Unlock()
		return nil, sc.openErr
	}

	rec := &opened{}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			rec.authorization = v[0]
		}
	}
	o.opens = append(o.opens, rec)
	o.mu.Unlock()

	o.openedCh <- struct{}{}
	return &fakeStream{ctx: ctx, sc: sc, rec: rec, mu: &o.mu}, nil
}

func (o *fakeOpener) calls() []opened {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]opened, len(o.opens))
	for i, rec := range o.opens {
		out[i] = *rec
	}
	return out
}

type fakeStream struct {
	ctx context.Context
	sc  script
	pos int
	rec *opened
	mu  *sync.Mutex
}

func (s *fakeStream) Send(req *wire.SatelliteStreamRequest) error {
	if s.sc.sendErr != nil {
		return s.sc.sendErr
	}
	s.mu.Lock()
	cp := *req
	s.rec.setup = &cp
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Recv() (*wire.SatelliteStreamResponse, error) {
	if s.pos < len(s.sc.msgs) {
		msg := s.sc.msgs[s.pos]
		s.pos++
		return msg, nil
	}
	if s.sc.end != nil {
		return nil, s.sc.end
	}
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *fakeStream) CloseSend() error { return nil }

// recordingSink records batches and optionally fails or runs a hook.
type recordingSink struct {
	mu      sync.Mutex
	acks    []string
	failAck string
	after   func()
}

func (s *recordingSink) WriteBatch(_ context.Context, _ types.StreamMeta, _ string, b *wire.TelemetryBatch) error {
	if b.MessageAckID == s.failAck {
		return errors.New("disk full")
	}
	s.mu.Lock()
	s.acks = append(s.acks, b.MessageAckID)
	s.mu.Unlock()
	if s.after != nil {
		s.after()
	}
	return nil
}

// failingTokens fails the nth call (1-based).
type failingTokens struct {
	mu    sync.Mutex
	calls int
	failN int
}

func (f *failingTokens) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failN {
		return "", errors.New("token endpoint unavailable")
	}
	return "tok", nil
}

// cancelledTokens cancels the stream before failing, as a token fetch
// interrupted by shutdown does.
type cancelledTokens struct {
	cancel context.CancelFunc
}

func (c *cancelledTokens) Token(ctx context.Context) (string, error) {
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

// recordingAdapter collects published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.StreamCompletedEvent
}

func (a *recordingAdapter) Publish(_ context.Context, e *adapter.StreamCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAdapter) Close() error { return nil }
