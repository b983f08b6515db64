// Package render writes command results as json, yaml or a table.
//
// Without --format, a terminal gets a table and a pipe gets json. --no-color
// only changes table output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

// Format is an output format name.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts json, table or yaml in any case. The empty string
// parses to "" so the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "", FormatJSON, FormatTable, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes values to one output in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer reads --format and --no-color from c and writes to stdout.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), os.Stdout), nil
}

// NewRendererWithWriter returns a renderer writing to out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	}
	return fmt.Errorf("unknown format: %s", r.format)
}

// RenderTitled writes a heading line before data in table output. json and
// yaml output are the same as Render.
func (r *Renderer) RenderTitled(title string, data any) error {
	if r.format == FormatTable {
		fmt.Fprintln(r.out, r.paint(titleStyle, title))
	}
	return r.Render(data)
}

// Status writes a footer line colored by ok. Table output only.
func (r *Renderer) Status(ok bool, line string) {
	if r.format != FormatTable {
		return
	}
	style := failureStyle
	if ok {
		style = successStyle
	}
	fmt.Fprintln(r.out, r.paint(style, line))
}

func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if r.noColor {
		return s
	}
	return style.Render(s)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
