package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeKeyFile(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey failed: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "downlink-test",
		"private_key_id": "key-1",
		"private_key":    string(pemKey),
		"client_email":   "operator@downlink-test.iam.gserviceaccount.com",
		"client_id":      "1234",
	})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestStaticToken(t *testing.T) {
	tests := []struct {
		name    string
		token   StaticToken
		want    string
		wantErr error
	}{
		{"plain", "abc", "abc", nil},
		{"trimmed", "  abc\n", "abc", nil},
		{"empty", "", "", ErrEmptyToken},
		{"blank", "   ", "", ErrEmptyToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.token.Token(t.Context())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Token() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Token() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyFileSource_MintsJWT(t *testing.T) {
	path := writeKeyFile(t)

	src, err := NewKeyFileSource(path, "")
	if err != nil {
		t.Fatalf("NewKeyFileSource failed: %v", err)
	}
	if src.Audience() != DefaultAudience {
		t.Errorf("Audience() = %q, want %q", src.Audience(), DefaultAudience)
	}

	tok, err := src.Token(t.Context())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("expected JWT with 3 segments, got %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("unmarshal claims failed: %v", err)
	}
	if claims["aud"] != DefaultAudience {
		t.Errorf("aud = %v, want %s", claims["aud"], DefaultAudience)
	}
	if claims["iss"] != "operator@downlink-test.iam.gserviceaccount.com" {
		t.Errorf("iss = %v", claims["iss"])
	}
}

func TestKeyFileSource_CancelledContext(t *testing.T) {
	src, err := NewKeyFileSource(writeKeyFile(t), "https://example.test")
	if err != nil {
		t.Fatalf("NewKeyFileSource failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := src.Token(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNewKeyFileSource_Errors(t *testing.T) {
	if _, err := NewKeyFileSource("", ""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewKeyFileSource(filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewKeyFileSourceFromJSON([]byte("not json"), ""); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestResolve(t *testing.T) {
	path := writeKeyFile(t)

	src, err := Resolve(path, "")
	if err != nil {
		t.Fatalf("Resolve(file) failed: %v", err)
	}
	if _, ok := src.(*KeyFileSource); !ok {
		t.Errorf("Resolve(file) = %T, want *KeyFileSource", src)
	}

	src, err = Resolve("pre-issued-token", "")
	if err != nil {
		t.Fatalf("Resolve(token) failed: %v", err)
	}
	if src != StaticToken("pre-issued-token") {
		t.Errorf("Resolve(token) = %v, want StaticToken", src)
	}

	if _, err := Resolve("  ", ""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Resolve(blank) error = %v, want ErrEmptyToken", err)
	}
}

func TestResolve_MissingKeyFile(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{
		filepath.Join(dir, "missing.json"),
		filepath.Join(dir, "missing-key"),
		"service-account.json",
	} {
		if _, err := Resolve(key, ""); !errors.Is(err, ErrKeyFileNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrKeyFileNotFound", key, err)
		}
	}

	if _, err := Resolve(dir, ""); err == nil {
		t.Error("Resolve(directory) should fail")
	}
}
