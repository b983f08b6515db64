package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(_ *testing.T) {
	// Must not exit on nil error.
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"stream failed without message", cli.Exit("", 1), 1, ""},
		{"config error with message", cli.Exit("--satellite-id is required", 2), 2, "--satellite-id is required"},
		{"wrapped exit coder", fmt.Errorf("stream: %w", cli.Exit("dial failed", 2)), 2, "dial failed"},
		{"joined exit coder", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42, "inner"},
		{"regular error", errors.New("boom"), 1, "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
