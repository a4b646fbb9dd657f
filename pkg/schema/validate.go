package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/papercomputeco/studyflow/pkg/media"
)

// ViolationError names the offending path and the expected vs. actual kind.
type ViolationError struct {
	Path     string
	Expected string
	Actual   string
	Reason   string

	// Err is the underlying cause, when there is one.
	Err error
}

func (e *ViolationError) Error() string {
	msg := fmt.Sprintf("schema violation at %s: expected %s, got %s", displayPath(e.Path), e.Expected, e.Actual)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}

	return msg
}

func (e *ViolationError) Unwrap() error { return e.Err }

// Validate checks payload against s and returns the validated value:
// defaults substituted, unknown object members dropped, numbers normalized
// to float64, media strings parsed into media.Reference values.
//
// A JSON null is treated as an absent value.
func Validate(s *Schema, payload any) (any, error) {
	return validate(s, payload, "")
}

// ValidateObject is Validate for object schemas, returning the member map.
func ValidateObject(s *Schema, payload any) (map[string]any, error) {
	v, err := Validate(s, payload)
	if err != nil {
		return nil, err
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ViolationError{Expected: string(KindObject), Actual: kindName(v)}
	}

	return m, nil
}

func validate(s *Schema, v any, path string) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("schema %s: nil schema", displayPath(path))
	}
	if v == nil {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: "null"}
	}

	switch s.Kind {
	case KindString:
		return validateString(s, v, path)

	case KindNumber, KindInteger:
		return validateNumber(s, v, path)

	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
		}
		return b, nil

	case KindArray:
		return validateArray(s, v, path)

	case KindObject:
		return validateObject(s, v, path)

	default:
		return nil, fmt.Errorf("schema %s: unknown kind %q", displayPath(path), s.Kind)
	}
}

func validateString(s *Schema, v any, path string) (any, error) {
	if s.Format == FormatMedia {
		switch t := v.(type) {
		case media.Reference:
			return t, nil
		case *media.Reference:
			if t != nil {
				return *t, nil
			}
		case string:
			ref, err := media.Parse(t)
			if err != nil {
				return nil, &ViolationError{Path: path, Expected: expected(s), Actual: "string", Reason: err.Error(), Err: err}
			}
			return ref, nil
		}
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}

	str, ok := v.(string)
	if !ok {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}

	return str, nil
}

func validateNumber(s *Schema, v any, path string) (any, error) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}
	if s.Kind == KindInteger && f != math.Trunc(f) {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: string(KindNumber), Reason: "not a whole number"}
	}
	if s.Minimum != nil && f < *s.Minimum {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: string(KindNumber), Reason: fmt.Sprintf("%g is below the minimum %g", f, *s.Minimum)}
	}

	return f, nil
}

func validateArray(s *Schema, v any, path string) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}
	if _, isBytes := v.([]byte); isBytes {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}

	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := validate(s.Items, rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}

	return out, nil
}

func validateObject(s *Schema, v any, path string) (any, error) {
	members, ok := asMap(v)
	if !ok {
		return nil, &ViolationError{Path: path, Expected: expected(s), Actual: kindName(v)}
	}

	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		fieldPath := join(path, f.Name)

		raw, present := members[f.Name]
		if !present || raw == nil {
			switch {
			case f.Default != nil:
				// validation rebuilds maps and slices, so defaults are never shared
				def, err := validate(f.Schema, f.Default, fieldPath)
				if err != nil {
					return nil, err
				}
				out[f.Name] = def
			case f.Optional:
			default:
				return nil, &ViolationError{Path: fieldPath, Expected: expected(f.Schema), Actual: "missing", Reason: "required field"}
			}
			continue
		}

		val, err := validate(f.Schema, raw, fieldPath)
		if err != nil {
			return nil, err
		}
		out[f.Name] = val
	}

	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}

	return m, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}

	return 0, false
}

func kindName(v any) string {
	if v == nil {
		return "null"
	}

	switch v.(type) {
	case string, media.Reference, *media.Reference:
		return string(KindString)
	case bool:
		return string(KindBoolean)
	case json.Number:
		return string(KindNumber)
	case []byte:
		return "bytes"
	}
	if _, ok := toFloat(v); ok {
		return string(KindNumber)
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return string(KindArray)
	case reflect.Map, reflect.Struct:
		return string(KindObject)
	}

	return fmt.Sprintf("%T", v)
}

func expected(s *Schema) string {
	if s == nil {
		return "unknown"
	}
	if s.Format == FormatMedia {
		return "media reference"
	}

	return string(s.Kind)
}

func join(path, name string) string {
	if path == "" {
		return name
	}

	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}

	return path
}
