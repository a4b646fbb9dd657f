package flow_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/schema"
	"github.com/papercomputeco/studyflow/pkg/tool"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

func flowError(err error) *flow.Error {
	var fe *flow.Error
	Expect(errors.As(err, &fe)).To(BeTrue(), "expected a flow.Error, got %v", err)
	return fe
}

var _ = Describe("Executor", func() {
	var (
		gen  *scriptedGenerator
		rec  *recorder
		exec *flow.Executor
		chat *flow.Definition
	)

	BeforeEach(func() {
		gen = &scriptedGenerator{}
		rec = &recorder{}
		exec = flow.NewExecutor(gen, zap.NewNop(), flow.WithRecorder(rec))

		chat = flow.MustDefine(flow.Config{
			Name: "chat",
			Input: schema.Object(
				schema.Prop("query", schema.String()),
				schema.PropDefault("context", schema.String(), ""),
			),
			Output: schema.Object(schema.Prop("answer", schema.String())),
			Prompt: "Context: {{{context}}}\n\nQuestion: {{{query}}}\n\nAnswer: ",
			Tools:  []*tool.Definition{search.Tool(search.NewCanned(search.DefaultRules, ""))},
		})
	})

	Context("when the model answers directly", func() {
		It("validates the JSON answer and walks every state", func() {
			gen.replies = []reply{text(`{"answer":"Paris."}`)}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "Capital of France?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output).To(Equal(map[string]any{"answer": "Paris."}))
			Expect(res.RunID).NotTo(BeEmpty())
			Expect(res.Transitions).To(Equal([]flow.State{
				flow.StateIdle, flow.StateValidating, flow.StateRendering,
				flow.StateGenerating, flow.StateValidatingOutput, flow.StateSucceeded,
			}))
		})

		It("renders the prompt with defaults and advertises tools", func() {
			gen.replies = []reply{text(`{"answer":"ok"}`)}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "hi"})
			Expect(err).NotTo(HaveOccurred())

			req := gen.requests[0]
			Expect(req.JSONOutput).To(BeTrue())
			Expect(req.Tools).To(HaveLen(1))
			Expect(req.Tools[0].Name).To(Equal("search"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0].Text()).To(HavePrefix("Context: \n\nQuestion: hi\n\nAnswer: "))
			Expect(req.Messages[0].Text()).To(ContainSubstring("Output should be in JSON format"))
		})

		It("accepts an answer inside a code fence", func() {
			gen.replies = []reply{text("```json\n{\"answer\": \"fenced\"}\n```")}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output["answer"]).To(Equal("fenced"))
		})

		It("wraps plain text into a sole string field", func() {
			gen.replies = []reply{text("  Just text.  ")}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output["answer"]).To(Equal("Just text."))
		})

		It("ignores prose after a closing code fence", func() {
			gen.replies = []reply{text("```json\n{\"answer\":\"Paris\"}\n```\nHope this helps!")}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output["answer"]).To(Equal("Paris"))
		})

		DescribeTable("fails on broken JSON instead of wrapping it",
			func(answer string) {
				gen.replies = []reply{text(answer)}

				res, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
				Expect(res).To(BeNil())
				fe := flowError(err)
				Expect(fe.Kind).To(Equal(flow.OutputSchemaViolation))
				Expect(fe.State).To(Equal(flow.StateValidatingOutput))
			},
			Entry("truncated object", `{"answer": "Par`),
			Entry("trailing data", `{"response":"Paris"} {"x":1}`),
			Entry("array", `["Paris"]`),
			Entry("fence without JSON", "```\nParis\n```"),
		)
	})

	Context("with one tool round trip", func() {
		It("feeds the observation back and uses the second answer", func() {
			gen.replies = []reply{
				toolCall("c1", "search", `{"query":"weather in Paris"}`),
				text(`{"answer":"It is sunny, 25°C."}`),
			}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "What's the weather?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output["answer"]).To(Equal("It is sunny, 25°C."))
			Expect(res.ToolResults).To(ConsistOf(llm.ToolResult{CallID: "c1", Name: "search", Content: "The weather is sunny, 25°C."}))

			Expect(gen.calls()).To(Equal(2))
			second := gen.requests[1]
			Expect(second.Messages).To(HaveLen(3))
			Expect(second.Messages[1].ToolCalls()).To(HaveLen(1))
			Expect(second.Messages[2].Role).To(Equal(llm.RoleTool))
			Expect(second.Messages[2].Parts[0].ToolResult.Content).To(Equal("The weather is sunny, 25°C."))
		})

		It("recovers from invalid tool arguments in the same turn", func() {
			gen.replies = []reply{
				toolCall("c1", "search", `{"q":"weather"}`),
				text(`{"answer":"I could not search."}`),
			}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "weather?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ToolResults).To(HaveLen(1))
			Expect(res.ToolResults[0].IsError).To(BeTrue())
			Expect(res.ToolResults[0].Content).To(ContainSubstring("invalid arguments"))
		})

		It("answers an unknown tool with an error observation", func() {
			gen.replies = []reply{
				toolCall("c1", "calculator", `{}`),
				text(`{"answer":"fine"}`),
			}

			res, err := exec.Run(context.Background(), chat, map[string]any{"query": "2+2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ToolResults[0].IsError).To(BeTrue())
		})

		It("fails when the model asks for tools a second time", func() {
			gen.replies = []reply{
				toolCall("c1", "search", `{"query":"news"}`),
				toolCall("c2", "search", `{"query":"more news"}`),
			}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "news?"})
			fe := flowError(err)
			Expect(fe.Kind).To(Equal(flow.OutputSchemaViolation))
			Expect(gen.calls()).To(Equal(2))
		})
	})

	Context("when the run fails", func() {
		It("rejects invalid input before any model call", func() {
			_, err := exec.Run(context.Background(), chat, map[string]any{"context": "x"})
			fe := flowError(err)
			Expect(fe.Kind).To(Equal(flow.SchemaViolation))
			Expect(fe.State).To(Equal(flow.StateValidating))
			Expect(fe.Transitions).To(Equal([]flow.State{flow.StateIdle, flow.StateValidating, flow.StateFailed}))

			var ve *schema.ViolationError
			Expect(errors.As(err, &ve)).To(BeTrue())
			Expect(ve.Path).To(Equal("query"))
			Expect(gen.calls()).To(BeZero())
		})

		It("reports an unbound optional placeholder", func() {
			def := flow.MustDefine(flow.Config{
				Name:   "greet",
				Input:  schema.Object(schema.OptionalProp("name", schema.String())),
				Output: schema.Object(schema.Prop("text", schema.String())),
				Prompt: "Hello {{name}}",
			})

			_, err := exec.Run(context.Background(), def, map[string]any{})
			Expect(flowError(err).Kind).To(Equal(flow.TemplateBindingError))
			Expect(gen.calls()).To(BeZero())
		})

		It("surfaces backend errors as ModelUnavailable without retrying", func() {
			boom := errors.New("connection refused")
			gen.replies = []reply{{err: boom}}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			fe := flowError(err)
			Expect(fe.Kind).To(Equal(flow.ModelUnavailable))
			Expect(fe.State).To(Equal(flow.StateGenerating))
			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(gen.calls()).To(Equal(1))
		})

		It("does not call the model once the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := exec.Run(ctx, chat, map[string]any{"query": "q"})
			Expect(flowError(err).Kind).To(Equal(flow.ModelUnavailable))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(gen.calls()).To(BeZero())
		})

		It("tags media the backend cannot take", func() {
			gen.replies = []reply{{err: fmt.Errorf("audio/ogg: %w", llm.ErrUnsupportedMedia)}}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			Expect(flowError(err).Kind).To(Equal(flow.UnsupportedMediaError))
		})

		It("rejects an empty object answer", func() {
			gen.replies = []reply{text(`{}`)}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			fe := flowError(err)
			Expect(fe.Kind).To(Equal(flow.OutputSchemaViolation))
			Expect(fe.State).To(Equal(flow.StateValidatingOutput))
			Expect(errors.Is(err, &flow.Error{Kind: flow.OutputSchemaViolation})).To(BeTrue())
		})

		It("rejects an empty answer", func() {
			gen.replies = []reply{text("   ")}

			_, err := exec.Run(context.Background(), chat, map[string]any{"query": "q"})
			Expect(flowError(err).Kind).To(Equal(flow.OutputSchemaViolation))
		})
	})

	Context("with structured output", func() {
		var cards *flow.Definition

		BeforeEach(func() {
			cards = flow.MustDefine(flow.Config{
				Name:  "cards",
				Input: schema.Object(schema.Prop("text", schema.String())),
				Output: schema.Object(schema.Prop("flashcards", schema.ArrayOf(schema.Object(
					schema.Prop("term", schema.String()),
					schema.Prop("definition", schema.String()),
				)))),
				Prompt: "Cards for: {{{text}}}",
				Verify: func(_, out map[string]any) error {
					if len(out["flashcards"].([]any)) == 0 {
						return errors.New("no flashcards")
					}
					return nil
				},
			})
		})

		It("does not accept plain text", func() {
			gen.replies = []reply{text("Term: Cell")}

			_, err := exec.Run(context.Background(), cards, map[string]any{"text": "biology"})
			Expect(flowError(err).Kind).To(Equal(flow.OutputSchemaViolation))
		})

		It("runs the post-validation check", func() {
			gen.replies = []reply{text(`{"flashcards":[]}`)}

			_, err := exec.Run(context.Background(), cards, map[string]any{"text": "biology"})
			fe := flowError(err)
			Expect(fe.Kind).To(Equal(flow.OutputSchemaViolation))
			Expect(fe.Err).To(MatchError("no flashcards"))
		})

		It("names the offending path", func() {
			gen.replies = []reply{text(`{"flashcards":[{"term":"a","definition":"b"},{"term":"c"}]}`)}

			_, err := exec.Run(context.Background(), cards, map[string]any{"text": "biology"})
			var ve *schema.ViolationError
			Expect(errors.As(err, &ve)).To(BeTrue())
			Expect(ve.Path).To(Equal("flashcards[1].definition"))
		})
	})

	Context("with media", func() {
		var (
			photo   media.Reference
			cartoon *flow.Definition
		)

		BeforeEach(func() {
			var err error
			photo, err = media.Encode([]byte{0xff, 0xd8, 0xff}, "image/jpeg")
			Expect(err).NotTo(HaveOccurred())

			cartoon = flow.MustDefine(flow.Config{
				Name:        "cartoon",
				Input:       schema.Object(schema.Prop("image", schema.Media())),
				Output:      schema.Object(schema.Prop("cartoon", schema.Media())),
				Prompt:      "{{media url=image}}Make it a cartoon.",
				MediaOutput: "cartoon",
			})
		})

		It("sends the media part and returns the first response image", func() {
			out, err := media.Encode([]byte{0x89, 'P', 'N', 'G'}, "image/png")
			Expect(err).NotTo(HaveOccurred())
			gen.replies = []reply{{resp: &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{
				llm.TextPart("Here you go."), llm.MediaPart(out),
			}}}}}

			res, err := exec.Run(context.Background(), cartoon, map[string]any{"image": photo.String()})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Output["cartoon"]).To(Equal(out))

			req := gen.requests[0]
			Expect(req.Wants(llm.ModalityImage)).To(BeTrue())
			Expect(req.JSONOutput).To(BeFalse())
			Expect(req.Messages[0].Media()).To(Equal([]media.Reference{photo}))
		})

		It("fails when the response has no media", func() {
			gen.replies = []reply{text("I cannot draw.")}

			_, err := exec.Run(context.Background(), cartoon, map[string]any{"image": photo.String()})
			Expect(flowError(err).Kind).To(Equal(flow.OutputSchemaViolation))
		})

		It("classifies a bad MIME type in the input", func() {
			_, err := exec.Run(context.Background(), cartoon, map[string]any{"image": "data:;base64,AAAA"})
			Expect(flowError(err).Kind).To(Equal(flow.UnsupportedMediaError))
		})

		It("classifies an undecodable reference as a schema violation", func() {
			_, err := exec.Run(context.Background(), cartoon, map[string]any{"image": "https://example.com/cat.jpg"})
			Expect(flowError(err).Kind).To(Equal(flow.SchemaViolation))
		})
	})

	It("records a trace for every run", func() {
		gen.replies = []reply{text(`{"answer":"a"}`), {err: errors.New("down")}}

		_, err := exec.Run(context.Background(), chat, map[string]any{"query": "one"})
		Expect(err).NotTo(HaveOccurred())
		_, err = exec.Run(context.Background(), chat, map[string]any{"query": "two"})
		Expect(err).To(HaveOccurred())

		Expect(rec.traces).To(HaveLen(2))
		Expect(rec.traces[0].Err).To(BeNil())
		Expect(rec.traces[0].Output).To(HaveKeyWithValue("answer", "a"))
		Expect(rec.traces[1].Err.Kind).To(Equal(flow.ModelUnavailable))
		Expect(rec.traces[1].Input).To(HaveKeyWithValue("query", "two"))
	})
})

var _ = Describe("Invoke", func() {
	type mcqIn struct {
		Document media.Reference `json:"documentMediaRef"`
		Count    int             `json:"numberOfQuestions,omitempty"`
	}
	type question struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Answer   string   `json:"answer"`
	}
	type mcqOut struct {
		Questions []question `json:"questions"`
	}

	It("round-trips typed input and output", func() {
		def := flow.MustDefine(flow.Config{
			Name: "mcq",
			Input: schema.Object(
				schema.Prop("documentMediaRef", schema.Media()),
				schema.PropDefault("numberOfQuestions", schema.Number(), 5),
			),
			Output: schema.Object(schema.Prop("questions", schema.ArrayOf(schema.Object(
				schema.Prop("question", schema.String()),
				schema.Prop("options", schema.ArrayOf(schema.String())),
				schema.Prop("answer", schema.String()),
			)))),
			Prompt: "Create {{{numberOfQuestions}}} questions. {{media url=documentMediaRef}}",
		})

		doc, err := media.Encode([]byte("%PDF"), "application/pdf")
		Expect(err).NotTo(HaveOccurred())

		gen := &scriptedGenerator{replies: []reply{text(`{"questions":[{"question":"Q?","options":["a","b","c","d"],"answer":"b"}]}`)}}
		exec := flow.NewExecutor(gen, zap.NewNop())

		out, err := flow.Invoke[mcqOut](context.Background(), exec, def, mcqIn{Document: doc})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Questions).To(Equal([]question{{Question: "Q?", Options: []string{"a", "b", "c", "d"}, Answer: "b"}}))
		Expect(gen.requests[0].Messages[0].Parts[0].Text).To(Equal("Create 5 questions. "))
	})
})

var _ = Describe("Define", func() {
	base := func() flow.Config {
		return flow.Config{
			Name:   "f",
			Input:  schema.Object(schema.Prop("a", schema.String())),
			Output: schema.Object(schema.Prop("b", schema.String())),
			Prompt: "{{a}}",
		}
	}

	It("accepts a well-formed config", func() {
		def, err := flow.Define(base())
		Expect(err).NotTo(HaveOccurred())
		Expect(def.Name()).To(Equal("f"))
		Expect(def.Template().Fields()).To(Equal([]string{"a"}))
	})

	It("rejects placeholders that are not input fields", func() {
		c := base()
		c.Prompt = "{{a}} {{missing}}"
		_, err := flow.Define(c)
		Expect(err).To(MatchError(ContainSubstring("missing")))
	})

	It("rejects a media output that is not a media field", func() {
		c := base()
		c.MediaOutput = "b"
		_, err := flow.Define(c)
		Expect(err).To(HaveOccurred())
	})

	It("rejects non-object schemas", func() {
		c := base()
		c.Output = schema.String()
		_, err := flow.Define(c)
		Expect(err).To(MatchError(ContainSubstring("output schema must be an object")))
	})
})
