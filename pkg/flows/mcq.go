package flows

import (
	"fmt"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/schema"
)

// DefaultQuestionCount is used when the caller does not ask for a number of
// questions.
const DefaultQuestionCount = 5

const mcqPrompt = `You are a teacher who specializes in creating multiple choice questions from documents.

Create {{{numberOfQuestions}}} multiple choice questions from the following document.

Document: {{media url=documentMediaRef}}

Each question should have 4 possible answers, one of which is correct.
Please provide the correct answer for each question.
The output should be a JSON object with a list of questions. Each question should have the question text, a list of options, and the correct answer.
`

// MCQRequest is the input of the quiz flow. A zero Count asks for
// DefaultQuestionCount questions.
type MCQRequest struct {
	Document media.Reference `json:"documentMediaRef"`
	Count    int             `json:"numberOfQuestions,omitempty"`
}

// Question is one multiple choice question.
type Question struct {
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// Quiz is the output of the quiz flow.
type Quiz struct {
	Questions []Question `json:"questions" yaml:"questions"`
}

func defineMcqs() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        GenerateMcqs,
		Description: "Generates multiple choice questions from a PDF document.",
		Input: schema.Object(
			schema.Prop("documentMediaRef", schema.Media().Describe("A PDF document, "+dataURIDescription)),
			schema.PropDefault("numberOfQuestions", schema.Integer().AtLeast(1).Describe("The number of multiple-choice questions to generate."), DefaultQuestionCount),
		),
		Output: schema.Object(
			schema.Prop("questions", schema.ArrayOf(schema.Object(
				schema.Prop("question", schema.String()),
				schema.Prop("options", schema.ArrayOf(schema.String())),
				schema.Prop("answer", schema.String()),
			))),
		),
		Prompt: mcqPrompt,
		Verify: checkQuiz,
	})
}

// checkQuiz enforces what the schema cannot: the requested question count,
// and exactly one option per question matching its answer.
func checkQuiz(in, out map[string]any) error {
	questions, _ := out["questions"].([]any)

	if want, ok := in["numberOfQuestions"].(float64); ok && int(want) != len(questions) {
		return fmt.Errorf("asked for %d questions, got %d", int(want), len(questions))
	}

	for i, q := range questions {
		item, _ := q.(map[string]any)
		answer, _ := item["answer"].(string)
		options, _ := item["options"].([]any)

		matches := 0
		for _, opt := range options {
			if opt == answer {
				matches++
			}
		}
		if matches != 1 {
			return fmt.Errorf("questions[%d]: answer %q matches %d options, want exactly 1", i, answer, matches)
		}
	}

	return nil
}
