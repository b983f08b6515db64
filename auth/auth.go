// Package auth provides bearer tokens for the streaming service.
//
// A token is fetched once per logical stream and reused for every physical
// attempt of that stream. Refreshing a token that expires mid-stream is not
// supported.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultAudience is the JWT audience of the public streaming endpoint.
const DefaultAudience = "https://api.stellarstation.com"

// ErrEmptyToken is returned when a source yields no token.
var ErrEmptyToken = errors.New("auth: empty token")

// ErrKeyFileNotFound is returned when a key that names a file does not exist.
var ErrKeyFileNotFound = errors.New("auth: key file not found")

// TokenSource yields bearer tokens. Implementations must be safe for
// concurrent use.
type TokenSource interface {
	// Token returns an opaque bearer token without the "Bearer " prefix.
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed, pre-issued token.
type StaticToken string

// Token returns the token, or ErrEmptyToken when blank.
func (s StaticToken) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrEmptyToken
	}
	return tok, nil
}

// KeyFileSource mints self-signed JWT access tokens from a service-account
// key file. Tokens are cached until they near expiry.
type KeyFileSource struct {
	ts       oauth2.TokenSource
	audience string
}

// NewKeyFileSource loads the key file at path.
// An empty audience selects DefaultAudience.
func NewKeyFileSource(path, audience string) (*KeyFileSource, error) {
	if path == "" {
		return nil, errors.New("auth: key file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read key file: %w", err)
	}
	return NewKeyFileSourceFromJSON(data, audience)
}

// NewKeyFileSourceFromJSON builds a source from key file contents.
func NewKeyFileSourceFromJSON(data []byte, audience string) (*KeyFileSource, error) {
	if audience == "" {
		audience = DefaultAudience
	}
	ts, err := google.JWTAccessTokenSourceFromJSON(data, audience)
	if err != nil {
		return nil, fmt.Errorf("auth: parse key file: %w", err)
	}
	return &KeyFileSource{ts: oauth2.ReuseTokenSource(nil, ts), audience: audience}, nil
}

// Audience returns the JWT audience tokens are minted for.
func (k *KeyFileSource) Audience() string {
	return k.audience
}

// Token returns a signed JWT for the configured audience. Signing is local,
// so ctx is only checked before signing.
func (k *KeyFileSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := k.ts.Token()
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return tok.AccessToken, nil
}

// Resolve picks a source for a configured key: a readable file is treated as
// a service-account key file, anything else as a pre-issued token. A key that
// looks like a path (contains "/" or ends in ".json") but names no regular
// file is an error rather than a token.
func Resolve(key, audience string) (TokenSource, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyToken
	}
	info, err := os.Stat(key)
	if err == nil && !info.IsDir() {
		return NewKeyFileSource(key, audience)
	}
	if looksLikePath(key) {
		if err == nil {
			return nil, fmt.Errorf("auth: key %s is a directory", key)
		}
		return nil, fmt.Errorf("%w: %s", ErrKeyFileNotFound, key)
	}
	return StaticToken(key), nil
}

func looksLikePath(key string) bool {
	return strings.Contains(key, "/") || strings.HasSuffix(strings.ToLower(key), ".json")
}

// Verify implementations satisfy TokenSource.
var (
	_ TokenSource = StaticToken("")
	_ TokenSource = (*KeyFileSource)(nil)
)
