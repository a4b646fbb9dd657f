// Package flows declares the study flows offered by studyflow and the typed
// entry points used by the CLI and the chat client.
package flows

import (
	"fmt"
	"sort"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

// Flow names, as exposed over HTTP, MCP and the CLI.
const (
	Chatbot                        = "chatbot"
	AnswerQuestions                = "answerQuestions"
	GenerateFlashcards             = "generateFlashcards"
	GenerateFlashcardsFromDocument = "generateFlashcardsFromDocument"
	GenerateMcqs                   = "generateMcqs"
	CartoonifyImage                = "cartoonifyImage"
	TranscribeAndSummarize         = "transcribeAndSummarize"
)

const dataURIDescription = "as a data URI that must include a MIME type and use Base64 encoding. Expected format: 'data:<mimetype>;base64,<encoded_data>'."

// Catalog is the immutable set of flow definitions, built once at startup.
type Catalog struct {
	byName map[string]*flow.Definition
}

// NewCatalog defines every flow. backend answers the chatbot's search tool.
func NewCatalog(backend search.Backend) (*Catalog, error) {
	builders := []func() (*flow.Definition, error){
		func() (*flow.Definition, error) { return defineChatbot(backend) },
		defineAnswerQuestions,
		defineFlashcards,
		defineFlashcardsFromDocument,
		defineMcqs,
		defineCartoonify,
		defineTranscribe,
	}

	c := &Catalog{byName: make(map[string]*flow.Definition, len(builders))}
	for _, build := range builders {
		def, err := build()
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[def.Name()]; dup {
			return nil, fmt.Errorf("duplicate flow %q", def.Name())
		}
		c.byName[def.Name()] = def
	}

	return c, nil
}

// Get looks a flow up by name.
func (c *Catalog) Get(name string) (*flow.Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Names lists the flows, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// All returns the definitions sorted by name.
func (c *Catalog) All() []*flow.Definition {
	names := c.Names()
	defs := make([]*flow.Definition, len(names))
	for i, name := range names {
		defs[i] = c.byName[name]
	}

	return defs
}

func (c *Catalog) mustGet(name string) *flow.Definition {
	def, ok := c.byName[name]
	if !ok {
		panic("flows: catalog has no " + name)
	}

	return def
}
