package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

// Set is an immutable, ordered collection of tools with unique names.
type Set struct {
	order  []*Definition
	byName map[string]*Definition
}

// NewSet checks every definition and indexes them by name.
func NewSet(defs ...*Definition) (*Set, error) {
	s := &Set{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := d.Check(); err != nil {
			return nil, err
		}
		if _, dup := s.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", d.Name)
		}
		s.byName[d.Name] = d
		s.order = append(s.order, d)
	}

	return s, nil
}

// Len is the number of tools; a nil set is empty.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.order)
}

func (s *Set) Get(name string) (*Definition, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.byName[name]
	return d, ok
}

func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.order))
	for i, d := range s.order {
		names[i] = d.Name
	}

	return names
}

// Specs lists the tools as advertised to the model, in declaration order.
func (s *Set) Specs() []llm.ToolSpec {
	if s == nil {
		return nil
	}
	specs := make([]llm.ToolSpec, len(s.order))
	for i, d := range s.order {
		specs[i] = d.Spec()
	}

	return specs
}

// Invoke dispatches call to the named tool. An unknown name yields an error
// observation listing the available tools.
func (s *Set) Invoke(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	res, _ := s.Call(ctx, call)
	return res
}

// Call is Invoke that also returns the failure cause.
func (s *Set) Call(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error) {
	d, ok := s.Get(call.Name)
	if !ok {
		err := fmt.Errorf("unknown tool: %s (available: %s)", call.Name, strings.Join(s.Names(), ", "))
		return llm.ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}, err
	}

	return d.Call(ctx, call)
}
