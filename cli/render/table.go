package render

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Faint(true)
)

// renderTable draws slices as a bordered grid with one row per element and
// anything else as aligned "key: value" lines.
func (r *Renderer) renderTable(data any) error {
	v := deref(reflect.ValueOf(data))
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return r.renderGrid(v)
	}

	keys, vals := columns(v)
	if keys == nil {
		_, err := fmt.Fprintln(r.out, cell(v))
		return err
	}
	width := 0
	for _, k := range keys {
		width = max(width, len(k)+1)
	}
	var b strings.Builder
	for i, k := range keys {
		label := fmt.Sprintf("%-*s", width, k+":")
		b.WriteString(r.paint(keyStyle, label))
		b.WriteString("  ")
		b.WriteString(vals[i])
		b.WriteByte('\n')
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *Renderer) renderGrid(v reflect.Value) error {
	if v.Len() == 0 {
		_, err := fmt.Fprintln(r.out, "(no results)")
		return err
	}

	headers, _ := columns(deref(v.Index(0)))
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow && !r.noColor {
				return headerStyle.Foreground(titleStyle.GetForeground())
			}
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if headers != nil {
		t.Headers(headers...)
	}
	for i := range v.Len() {
		elem := deref(v.Index(i))
		if _, vals := columns(elem); vals != nil {
			t.Row(vals...)
		} else {
			t.Row(cell(elem))
		}
	}
	_, err := fmt.Fprintln(r.out, t.Render())
	return err
}

// columns flattens a struct or map into parallel key and value slices.
// Map keys are sorted. Other kinds yield nil.
func columns(v reflect.Value) (keys, vals []string) {
	switch v.Kind() {
	case reflect.Struct:
		if _, ok := v.Interface().(time.Time); ok {
			return nil, nil
		}
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			keys = append(keys, name)
			vals = append(vals, cell(v.Field(i)))
		}
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			keys = append(keys, fmt.Sprint(k.Interface()))
			vals = append(vals, cell(v.MapIndex(k)))
		}
		if keys == nil {
			keys, vals = []string{}, []string{}
		}
	}
	return keys, vals
}

// fieldName returns the json name of an exported field, or false when the
// field is unexported or tagged "-".
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	}
	return name, true
}

// cell formats one value for a table cell. Small maps are inlined as
// k=v pairs; nested structs and slices are summarized.
func cell(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		pairs := make([]string, 0, v.Len())
		for _, k := range sortedKeys(v) {
			pairs = append(pairs, fmt.Sprintf("%v=%v", k.Interface(), deref(v.MapIndex(k)).Interface()))
		}
		return strings.Join(pairs, " ")
	case reflect.Struct:
		if ts, ok := v.Interface().(time.Time); ok {
			return ts.Format(time.RFC3339)
		}
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
