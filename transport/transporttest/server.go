// Package transporttest provides an in-process satellite stream service for
// tests. It runs over bufconn and plays one scripted sequence of responses
// per opened stream, recording what each stream was set up with.
package transporttest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pithecene-io/downlink/iox"
	"github.com/pithecene-io/downlink/transport"
	"github.com/pithecene-io/downlink/wire"
)

const bufSize = 1024 * 1024

// Step is one scripted server action. Exactly one field is set.
type Step struct {
	// Response is sent to the client.
	Response *wire.SatelliteStreamResponse
	// Err ends the call with this error.
	Err error
	// Hang blocks until the client cancels the call.
	Hang bool
}

// Script is played on one opened stream. If every step is a response, the
// server ends the call gracefully after the last one.
type Script []Step

// Call records one opened stream.
type Call struct {
	// Setup is the first message received, nil if none arrived.
	Setup *wire.SatelliteStreamRequest
	// Authorization is the authorization header value.
	Authorization string
}

// Server is the fake service.
type Server struct {
	mu      sync.Mutex
	scripts []Script
	calls   []Call

	lis *bufconn.Listener
	srv *grpc.Server
}

// NewServer starts a fake service playing scripts in order, one per stream.
// It is stopped when the test ends.
func NewServer(t testing.TB, scripts ...Script) *Server {
	t.Helper()

	s := &Server{
		scripts: scripts,
		lis:     bufconn.Listen(bufSize),
		srv:     grpc.NewServer(grpc.ForceServerCodec(wire.Codec{})),
	}
	s.srv.RegisterService(&serviceDesc, s)

	go func() {
		_ = s.srv.Serve(s.lis)
	}()
	t.Cleanup(s.srv.Stop)
	return s
}

// Enqueue appends scripts for later streams.
func (s *Server) Enqueue(scripts ...Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, scripts...)
}

// Calls returns the streams opened so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Target is a dial target for clients configured with DialOption.
const Target = "passthrough:///bufnet"

// DialOption routes every connection of a client to the server.
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.lis.DialContext(ctx)
	})
}

// Dial connects a transport.Client to the server. The client is closed when
// the test ends.
func (s *Server) Dial(t testing.TB) *transport.Client {
	t.Helper()

	client, err := transport.Dial(transport.DialConfig{
		Endpoint:    Target,
		Insecure:    true,
		DialOptions: []grpc.DialOption{s.DialOption()},
	})
	if err != nil {
		t.Fatalf("transport.Dial failed: %v", err)
	}
	t.Cleanup(iox.CloseFunc(client))
	return client
}

func (s *Server) openSatelliteStream(stream grpc.ServerStream) error {
	call := Call{}
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		if v := md.Get(transport.AuthorizationKey); len(v) > 0 {
			call.Authorization = v[0]
		}
	}

	setup := &wire.SatelliteStreamRequest{}
	if err := stream.RecvMsg(setup); err == nil {
		call.Setup = setup
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	var script Script
	ok := len(s.scripts) > 0
	if ok {
		script = s.scripts[0]
		s.scripts = s.scripts[1:]
	}
	s.mu.Unlock()

	if !ok {
		return status.Error(codes.Unavailable, "transporttest: no script left")
	}

	for _, step := range script {
		switch {
		case step.Response != nil:
			if err := stream.SendMsg(step.Response); err != nil {
				return err
			}
		case step.Err != nil:
			return step.Err
		case step.Hang:
			<-stream.Context().Done()
			return status.FromContextError(stream.Context().Err()).Err()
		}
	}
	return nil
}

type streamService interface {
	openSatelliteStream(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: transport.ServiceName,
	HandlerType: (*streamService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: transport.MethodOpenSatelliteStream,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(streamService).openSatelliteStream(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
