package flows

import (
	"strings"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/schema"
)

const flashcardsFromDocumentPrompt = `You are an expert educator, skilled at creating flashcards from documents.

Generate flashcards from the following document. Each flashcard should have a term and a definition.
The term should be a key concept from the document, and the definition should be a concise explanation of the term.
Ensure the flashcards are accurate and helpful for studying the material.

Document: {{media url=documentMediaRef}}`

const flashcardsPrompt = `You are an expert educator, skilled at creating flashcards from study notes.

Generate flashcards from the following text. Each flashcard should have a term and a definition.
The term should be a key concept from the text, and the definition should be a concise explanation of the term.
Ensure the flashcards are accurate and helpful for studying the material.

Text: {{{text}}}`

// Flashcard is a term and its definition.
type Flashcard struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// Flashcards is the output of both flashcard flows.
type Flashcards struct {
	Flashcards []Flashcard `json:"flashcards" yaml:"flashcards"`
}

// FlashcardText is the input of the text flashcard flow.
type FlashcardText struct {
	Text string `json:"text"`
}

// FlashcardDocument is the input of the document flashcard flow.
type FlashcardDocument struct {
	Document media.Reference `json:"documentMediaRef"`
}

var flashcardsSchema = schema.Object(
	schema.Prop("flashcards", schema.ArrayOf(schema.Object(
		schema.Prop("term", schema.String()),
		schema.Prop("definition", schema.String()),
	)).Describe("The generated flashcards.")),
)

func defineFlashcards() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        GenerateFlashcards,
		Description: "Generates study flashcards from free text.",
		Input: schema.Object(
			schema.Prop("text", schema.String().Describe("The study material to turn into flashcards.")),
		),
		Output: flashcardsSchema,
		Prompt: flashcardsPrompt,
	})
}

func defineFlashcardsFromDocument() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        GenerateFlashcardsFromDocument,
		Description: "Generates study flashcards from a PDF document.",
		Input: schema.Object(
			schema.Prop("documentMediaRef", schema.Media().Describe("A PDF document, "+dataURIDescription)),
		),
		Output: flashcardsSchema,
		Prompt: flashcardsFromDocumentPrompt,
	})
}

// ExportFlashcards renders cards in the plain text download format.
func ExportFlashcards(cards []Flashcard) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString("Term: ")
		b.WriteString(c.Term)
		b.WriteString("\nDefinition: ")
		b.WriteString(c.Definition)
		b.WriteString("\n\n")
	}

	return b.String()
}
