package flows

import (
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/schema"
	"github.com/papercomputeco/studyflow/pkg/tool"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

const chatbotPrompt = `You are a helpful AI chatbot that answers questions.
If the user provides context, answer based on that context.
If the user asks for real-time information, or something you don't know, use the search tool.

Context: {{{context}}}

Question: {{{query}}}

Answer: `

const answerQuestionsPrompt = `You are a helpful study assistant. Answer the question using the document below.
If the document does not contain the answer, say so instead of guessing.

Document: {{media url=documentMediaRef}}

Question: {{{query}}}

Answer: `

// ChatInput is the chatbot input. Context holds earlier turns rendered by
// conversation.BuildContext.
type ChatInput struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

// Answer is the output of the chatbot and of document Q&A.
type Answer struct {
	Answer string `json:"answer"`
}

// DocumentQuestion asks a question about an attached document.
type DocumentQuestion struct {
	Document media.Reference `json:"documentMediaRef"`
	Query    string          `json:"query"`
}

var answerSchema = schema.Object(
	schema.Prop("answer", schema.String().Describe("The answer to the question.")),
)

func defineChatbot(backend search.Backend) (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        Chatbot,
		Description: "Answers a question, using earlier conversation as context and a web search tool for real-time information.",
		Input: schema.Object(
			schema.Prop("query", schema.String().Describe("The question to ask the chatbot.")),
			schema.Prop("context", schema.String().Describe("The context to answer the question based on.")),
		),
		Output: answerSchema,
		Prompt: chatbotPrompt,
		Tools:  []*tool.Definition{search.Tool(backend)},
	})
}

func defineAnswerQuestions() (*flow.Definition, error) {
	return flow.Define(flow.Config{
		Name:        AnswerQuestions,
		Description: "Answers a question about an attached document.",
		Input: schema.Object(
			schema.Prop("documentMediaRef", schema.Media().Describe("A document, "+dataURIDescription)),
			schema.Prop("query", schema.String().Describe("The question about the document.")),
		),
		Output: answerSchema,
		Prompt: answerQuestionsPrompt,
	})
}
