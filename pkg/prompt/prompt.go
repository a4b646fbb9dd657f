// Package prompt renders prompt templates into ordered text and media segments.
//
// Templates use mustache-style placeholders:
//
//	{{query}}                 text interpolation
//	{{{query}}}               same, kept for templates written for raw output
//	{{document.title}}        dotted path into nested objects
//	{{media url=documentRef}} a media segment
//
// A placeholder whose bound value is a media.Reference always becomes a media
// segment, whichever form it is written in. Nothing is ever escaped.
package prompt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/studyflow/pkg/media"
)

// BindingError reports a template that does not fit its input: a missing or
// unbound field, a value that cannot be interpolated, or a malformed
// placeholder.
type BindingError struct {
	Placeholder string
	Reason      string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("template binding {{%s}}: %s", e.Placeholder, e.Reason)
}

// Segment is either literal text or a media reference.
type Segment struct {
	Text  string
	Media media.Reference
}

// IsMedia reports whether the segment carries media.
func (s Segment) IsMedia() bool { return !s.Media.IsZero() }

// Rendered is the ordered segment sequence produced by a template.
type Rendered []Segment

// Text flattens the segments, writing media as a short marker. It is meant
// for logs and backends without multimodal input.
func (r Rendered) Text() string {
	var b strings.Builder
	for _, seg := range r {
		if seg.IsMedia() {
			fmt.Fprintf(&b, "[media %s, %d bytes]", seg.Media.MIMEType(), seg.Media.Size())
			continue
		}
		b.WriteString(seg.Text)
	}

	return b.String()
}

// Media lists the media references in order of appearance.
func (r Rendered) Media() []media.Reference {
	var refs []media.Reference
	for _, seg := range r {
		if seg.IsMedia() {
			refs = append(refs, seg.Media)
		}
	}

	return refs
}

type part struct {
	literal string

	// set for placeholders
	raw   string
	path  []string
	media bool
}

func (p part) isPlaceholder() bool { return p.path != nil }

// Template is a parsed prompt template. It is immutable and safe for
// concurrent use.
type Template struct {
	source string
	parts  []part
}

// Parse compiles a template.
func Parse(source string) (*Template, error) {
	t := &Template{source: source}

	rest := source
	for len(rest) > 0 {
		open := strings.Index(rest, "{{")
		if open < 0 {
			t.parts = append(t.parts, part{literal: rest})
			break
		}
		if open > 0 {
			t.parts = append(t.parts, part{literal: rest[:open]})
		}
		rest = rest[open:]

		opener, closer := "{{", "}}"
		if strings.HasPrefix(rest, "{{{") {
			opener, closer = "{{{", "}}}"
		}

		end := strings.Index(rest[len(opener):], closer)
		if end < 0 {
			return nil, &BindingError{Placeholder: truncate(rest, 32), Reason: "unterminated placeholder"}
		}

		inner := strings.TrimSpace(rest[len(opener) : len(opener)+end])
		p, err := parsePlaceholder(inner)
		if err != nil {
			return nil, err
		}
		t.parts = append(t.parts, p)
		rest = rest[len(opener)+end+len(closer):]
	}

	return t, nil
}

// MustParse is Parse for templates known at compile time.
func MustParse(source string) *Template {
	t, err := Parse(source)
	if err != nil {
		panic(err)
	}

	return t
}

func parsePlaceholder(inner string) (part, error) {
	p := part{raw: inner}

	expr := inner
	if name, attrs, ok := strings.Cut(inner, " "); ok && name == "media" {
		p.media = true
		expr = ""
		for _, attr := range strings.Fields(attrs) {
			key, val, _ := strings.Cut(attr, "=")
			if key == "url" {
				expr = strings.Trim(val, `"'`)
			}
		}
		if expr == "" {
			return part{}, &BindingError{Placeholder: inner, Reason: "media placeholder without url="}
		}
	}

	if !validPath(expr) {
		return part{}, &BindingError{Placeholder: inner, Reason: "invalid field reference"}
	}

	p.path = strings.Split(expr, ".")
	return p, nil
}

func validPath(expr string) bool {
	if expr == "" {
		return false
	}
	for _, seg := range strings.Split(expr, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !(r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}

	return true
}

// Source returns the template text.
func (t *Template) Source() string { return t.source }

// Fields returns the top-level input fields referenced by the template, in
// order of first use.
func (t *Template) Fields() []string {
	var names []string
	seen := map[string]bool{}
	for _, p := range t.parts {
		if p.isPlaceholder() && !seen[p.path[0]] {
			seen[p.path[0]] = true
			names = append(names, p.path[0])
		}
	}

	return names
}

// Render binds input into the template.
func (t *Template) Render(input map[string]any) (Rendered, error) {
	var out Rendered
	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(out); n > 0 && !out[n-1].IsMedia() {
			out[n-1].Text += s
			return
		}
		out = append(out, Segment{Text: s})
	}

	for _, p := range t.parts {
		if !p.isPlaceholder() {
			appendText(p.literal)
			continue
		}

		val, ok := lookup(input, p.path)
		if !ok || val == nil {
			return nil, &BindingError{Placeholder: p.raw, Reason: "no bound value"}
		}

		if ref, isMedia := asReference(val, p.media); isMedia {
			out = append(out, Segment{Media: ref})
			continue
		}
		if p.media {
			return nil, &BindingError{Placeholder: p.raw, Reason: fmt.Sprintf("value of kind %T is not a media reference", val)}
		}

		text, err := scalarText(val)
		if err != nil {
			return nil, &BindingError{Placeholder: p.raw, Reason: err.Error()}
		}
		appendText(text)
	}

	return out, nil
}

// Render parses and renders in one step.
func Render(template string, input map[string]any) (Rendered, error) {
	t, err := Parse(template)
	if err != nil {
		return nil, err
	}

	return t.Render(input)
}

func lookup(input map[string]any, path []string) (any, bool) {
	var cur any = input
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

func asReference(val any, wantMedia bool) (media.Reference, bool) {
	switch v := val.(type) {
	case media.Reference:
		return v, !v.IsZero()
	case *media.Reference:
		if v != nil && !v.IsZero() {
			return *v, true
		}
	case string:
		if wantMedia {
			if ref, err := media.Parse(v); err == nil {
				return ref, true
			}
		}
	}

	return media.Reference{}, false
}

func scalarText(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case json.Number:
		return v.String(), nil
	}

	return "", fmt.Errorf("value of kind %T is not a scalar", val)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
