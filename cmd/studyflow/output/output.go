// Package output prints command results as JSON, YAML or wrapped text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/studyflow/pkg/media"
)

// Formats accepted by Write.
const (
	JSON = "json"
	YAML = "yaml"
	Text = "text"
)

const defaultWidth = 80

// Check rejects an unknown format name.
func Check(format string) error {
	switch format {
	case JSON, YAML, Text:
		return nil
	}

	return fmt.Errorf("unknown format %q (available: %s, %s, %s)", format, JSON, YAML, Text)
}

// Write prints v in format. Values go through their JSON encoding first, so
// media references appear as data URIs in JSON and YAML and as a short
// summary in text.
func Write(w io.Writer, format string, v any) error {
	plain, err := normalize(v)
	if err != nil {
		return err
	}

	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plain)

	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plain); err != nil {
			return err
		}
		return enc.Close()

	case Text:
		var b strings.Builder
		writeText(&b, plain, Width(w), 0)
		_, err := io.WriteString(w, b.String())
		return err

	default:
		return Check(format)
	}
}

// Width is the terminal width of w, or 80 when w is not a terminal.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}

	return defaultWidth
}

// Wrap word-wraps s to width.
func Wrap(s string, width int) string {
	return wordwrap.String(s, width)
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}

	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}

	return plain, nil
}

func writeText(b *strings.Builder, v any, width, depth int) {
	pad := uint(depth * 2)

	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if scalar, ok := scalarText(t[k]); ok {
				line := Wrap(k+": "+scalar, width-int(pad))
				b.WriteString(indent.String(line, pad) + "\n")
				continue
			}
			b.WriteString(indent.String(k+":", pad) + "\n")
			writeText(b, t[k], width, depth+1)
		}

	case []any:
		for i, elem := range t {
			if scalar, ok := scalarText(elem); ok {
				line := Wrap(fmt.Sprintf("%d. %s", i+1, scalar), width-int(pad))
				b.WriteString(indent.String(line, pad) + "\n")
				continue
			}
			b.WriteString(indent.String(fmt.Sprintf("%d.", i+1), pad) + "\n")
			writeText(b, elem, width, depth+1)
		}

	default:
		scalar, _ := scalarText(t)
		b.WriteString(indent.String(Wrap(scalar, width-int(pad)), pad) + "\n")
	}
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		if ref, err := media.Parse(t); err == nil {
			return fmt.Sprintf("[%s, %d bytes]", ref.MIMEType(), ref.Size()), true
		}
		return t, true
	case bool, float64:
		return fmt.Sprint(t), true
	}

	return "", false
}
