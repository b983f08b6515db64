package cmd

import (
	"bytes"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestOutputFlags(t *testing.T) {
	names := map[string]bool{}
	for _, f := range OutputFlags() {
		names[f.Names()[0]] = true
	}
	for _, want := range []string{"format", "no-color"} {
		if !names[want] {
			t.Errorf("OutputFlags missing --%s", want)
		}
	}
}

func TestCommandsAcceptOutputFlags(t *testing.T) {
	for _, c := range []*cli.Command{StreamCommand(), StatsCommand(), VersionCommand("abc")} {
		names := map[string]bool{}
		for _, f := range c.Flags {
			for _, n := range f.Names() {
				names[n] = true
			}
		}
		if !names["format"] || !names["f"] || !names["no-color"] {
			t.Errorf("%s should accept --format/-f and --no-color", c.Name)
		}
	}
}

func TestStreamCommand_FlagAliases(t *testing.T) {
	names := map[string]bool{}
	for _, f := range StreamCommand().Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}
	for _, want := range []string{"s", "p", "r", "reconnect-message-index", "reconnect-message-ack-id", "url", "key"} {
		if !names[want] {
			t.Errorf("stream command missing flag %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	app := cli.NewApp()
	app.Commands = []*cli.Command{VersionCommand("abc123")}
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"downlink", "version", "--format", "json"}); err != nil {
		t.Fatalf("version failed: %v", err)
	}
}
