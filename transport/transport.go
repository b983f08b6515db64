// Package transport carries the satellite stream call over gRPC.
//
// One Client wraps one shared *grpc.ClientConn. Every logical stream opens its
// own bidirectional call on it; the connection is safe for concurrent use.
// Messages are encoded by wire.Codec, so no generated stubs are involved.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

const (
	// ServiceName is the fully qualified gRPC service.
	ServiceName = "stellarstation.api.v1.StellarStationService"
	// MethodOpenSatelliteStream is the bidirectional streaming method.
	MethodOpenSatelliteStream = "OpenSatelliteStream"
	// FullMethod is the call path of the stream.
	FullMethod = "/" + ServiceName + "/" + MethodOpenSatelliteStream

	// DefaultMaxMessageBytes raises gRPC's 4 MiB default to the 10 MiB the
	// service may send.
	DefaultMaxMessageBytes = 10 * 1024 * 1024

	// AuthorizationKey is the metadata key carrying the bearer token.
	AuthorizationKey = "authorization"
)

// DefaultUserAgent identifies the client to the service.
var DefaultUserAgent = "downlink/" + types.Version

// ErrInvalidCredential is returned when a bearer token cannot be attached.
var ErrInvalidCredential = errors.New("transport: invalid credential")

// Stream is one physical duplex stream.
type Stream interface {
	// Send writes an outbound message.
	Send(req *wire.SatelliteStreamRequest) error
	// Recv blocks for the next inbound message. It returns io.EOF when the
	// server ends the stream gracefully.
	Recv() (*wire.SatelliteStreamResponse, error)
	// CloseSend half-closes the outbound direction.
	CloseSend() error
}

// Opener opens physical streams. The stream lives until ctx is cancelled or
// the server ends it.
type Opener interface {
	OpenStream(ctx context.Context) (Stream, error)
}

// DialConfig configures the shared connection.
type DialConfig struct {
	// Endpoint is https://host[:port], http://host:port (plaintext) or host:port.
	// Targets with another scheme (dns:///, passthrough:///, unix://) are used as is.
	Endpoint string
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
	// Insecure forces plaintext for host:port and passthrough targets.
	Insecure bool
	// MaxMessageBytes bounds inbound and outbound messages.
	// Zero selects DefaultMaxMessageBytes.
	MaxMessageBytes int
	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

// Client owns the shared connection.
type Client struct {
	conn   *grpc.ClientConn
	target string
}

// Dial creates the shared connection. The connection is established lazily
// on the first call.
func Dial(cfg DialConfig) (*Client, error) {
	target, plaintext, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	plaintext = plaintext || cfg.Insecure

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}

	var creds credentials.TransportCredentials
	if plaintext {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent(userAgent),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxBytes),
			grpc.MaxCallSendMsgSize(maxBytes),
		),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}
	return &Client{conn: conn, target: target}, nil
}

// ParseEndpoint converts an endpoint into a gRPC target and reports whether
// the scheme asks for plaintext.
func ParseEndpoint(endpoint string) (target string, plaintext bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errors.New("transport: endpoint is required")
	}

	if !strings.Contains(endpoint, "://") {
		return withDefaultPort(endpoint, "443"), false, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "https":
		if u.Host == "" {
			return "", false, fmt.Errorf("transport: endpoint %q has no host", endpoint)
		}
		return withDefaultPort(u.Host, "443"), false, nil
	case "http":
		if u.Host == "" {
			return "", false, fmt.Errorf("transport: endpoint %q has no host", endpoint)
		}
		return withDefaultPort(u.Host, "80"), true, nil
	default:
		return endpoint, false, nil
	}
}

func withDefaultPort(hostport, port string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(strings.Trim(hostport, "[]"), port)
}

// Target returns the resolved gRPC target.
func (c *Client) Target() string {
	return c.target
}

// OpenStream opens the bidirectional stream call.
// The bearer must already be attached to ctx (see WithBearer).
func (c *Client) OpenStream(ctx context.Context) (Stream, error) {
	desc := &grpc.StreamDesc{
		StreamName:    MethodOpenSatelliteStream,
		ServerStreams: true,
		ClientStreams: true,
	}
	cs, err := c.conn.NewStream(ctx, desc, FullMethod, grpc.ForceCodec(wire.Codec{}))
	if err != nil {
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	return &clientStream{cs: cs}, nil
}

// Close tears down the shared connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// WithBearer attaches "authorization: Bearer <token>" to outgoing metadata.
func WithBearer(ctx context.Context, token string) (context.Context, error) {
	if err := validateToken(token); err != nil {
		return ctx, err
	}
	return metadata.AppendToOutgoingContext(ctx, AuthorizationKey, "Bearer "+token), nil
}

func validateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	for _, r := range token {
		// Header values must be visible ASCII.
		if r <= ' ' || r > '~' {
			return fmt.Errorf("%w: token contains invalid characters", ErrInvalidCredential)
		}
	}
	return nil
}

type clientStream struct {
	cs grpc.ClientStream
}

func (s *clientStream) Send(req *wire.SatelliteStreamRequest) error {
	return s.cs.SendMsg(req)
}

func (s *clientStream) Recv() (*wire.SatelliteStreamResponse, error) {
	resp := &wire.SatelliteStreamResponse{}
	if err := s.cs.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *clientStream) CloseSend() error {
	return s.cs.CloseSend()
}

// Verify Client implements Opener.
var _ Opener = (*Client)(nil)
