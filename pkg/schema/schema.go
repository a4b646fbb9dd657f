// Package schema describes payload shapes as data and validates plain values
// against them. One engine serves every flow input, flow output and tool
// argument in the system.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Kind is the structural type of a value.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// FormatMedia marks a string that carries a media reference.
const FormatMedia = "media"

// Schema is a declarative description of a value.
type Schema struct {
	Kind        Kind
	Description string

	// Format refines a string kind. Only FormatMedia changes validation.
	Format string

	// Minimum is the smallest accepted number, when set.
	Minimum *float64

	// Items is the element schema of an array.
	Items *Schema

	// Fields are the members of an object, in declaration order.
	Fields []Field
}

// Field is a named member of an object schema.
type Field struct {
	Name     string
	Schema   *Schema
	Optional bool

	// Default is substituted when the field is absent. A non-nil default
	// makes the field effectively optional.
	Default any
}

func String() *Schema  { return &Schema{Kind: KindString} }
func Number() *Schema  { return &Schema{Kind: KindNumber} }
func Boolean() *Schema { return &Schema{Kind: KindBoolean} }

// Integer is a number with no fractional part.
func Integer() *Schema { return &Schema{Kind: KindInteger} }

// Media is a string holding a media reference.
func Media() *Schema { return &Schema{Kind: KindString, Format: FormatMedia} }

func ArrayOf(items *Schema) *Schema { return &Schema{Kind: KindArray, Items: items} }

func Object(fields ...Field) *Schema { return &Schema{Kind: KindObject, Fields: fields} }

// Describe returns a copy of s with the description set.
func (s *Schema) Describe(description string) *Schema {
	c := *s
	c.Description = description
	return &c
}

// AtLeast returns a copy of s that rejects numbers below min.
func (s *Schema) AtLeast(min float64) *Schema {
	c := *s
	c.Minimum = &min
	return &c
}

// Prop declares a required field.
func Prop(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

// OptionalProp declares an optional field without a default.
func OptionalProp(name string, s *Schema) Field {
	return Field{Name: name, Schema: s, Optional: true}
}

// PropDefault declares a field that takes def when absent.
func PropDefault(name string, s *Schema, def any) Field {
	return Field{Name: name, Schema: s, Optional: true, Default: def}
}

// Field looks up an object member by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

// SoleStringField returns the name of the only field of an object schema
// when that field is a plain string.
func (s *Schema) SoleStringField() (string, bool) {
	if s == nil || s.Kind != KindObject || len(s.Fields) != 1 {
		return "", false
	}

	f := s.Fields[0]
	if f.Schema == nil || f.Schema.Kind != KindString || f.Schema.Format == FormatMedia {
		return "", false
	}

	return f.Name, true
}

// MediaFields lists the top-level fields that carry media references.
func (s *Schema) MediaFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Schema != nil && f.Schema.Format == FormatMedia {
			names = append(names, f.Name)
		}
	}

	return names
}

// Check verifies the schema itself is well formed: known kinds, unique and
// non-empty field names, element schemas for arrays, and defaults that
// conform to their field schema.
func (s *Schema) Check() error {
	return s.check("")
}

func (s *Schema) check(path string) error {
	if s == nil {
		return fmt.Errorf("schema %s: nil schema", displayPath(path))
	}

	switch s.Kind {
	case KindString, KindBoolean:
		return nil

	case KindNumber, KindInteger:
		return nil

	case KindArray:
		if s.Items == nil {
			return fmt.Errorf("schema %s: array without items", displayPath(path))
		}
		return s.Items.check(path + "[]")

	case KindObject:
		seen := make(map[string]struct{}, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				return fmt.Errorf("schema %s: empty field name", displayPath(path))
			}
			if _, dup := seen[f.Name]; dup {
				return fmt.Errorf("schema %s: duplicate field %q", displayPath(path), f.Name)
			}
			seen[f.Name] = struct{}{}

			fieldPath := join(path, f.Name)
			if err := f.Schema.check(fieldPath); err != nil {
				return err
			}
			if f.Default != nil {
				if _, err := validate(f.Schema, f.Default, fieldPath); err != nil {
					return fmt.Errorf("schema %s: default does not conform: %w", fieldPath, err)
				}
			}
		}
		return nil

	default:
		return fmt.Errorf("schema %s: unknown kind %q", displayPath(path), s.Kind)
	}
}

// JSONSchema exports s as a JSON Schema document, the shape model providers
// and MCP clients expect for tool parameters.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	if s == nil {
		return nil
	}

	out := &jsonschema.Schema{
		Type:        string(s.Kind),
		Description: s.Description,
		Minimum:     s.Minimum,
	}
	if s.Format == FormatMedia {
		out.Format = "data-url"
		if out.Description == "" {
			out.Description = "A data URI: data:<mimetype>;base64,<encoded_data>."
		}
	}

	switch s.Kind {
	case KindArray:
		out.Items = s.Items.JSONSchema()

	case KindObject:
		out.Properties = make(map[string]*jsonschema.Schema, len(s.Fields))
		for _, f := range s.Fields {
			prop := f.Schema.JSONSchema()
			if f.Default != nil {
				if raw, err := json.Marshal(f.Default); err == nil {
					prop.Default = raw
				}
			}
			out.Properties[f.Name] = prop
			if !f.Optional && f.Default == nil {
				out.Required = append(out.Required, f.Name)
			}
		}
	}

	return out
}
