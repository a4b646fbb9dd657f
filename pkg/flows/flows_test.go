package flows_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

func kind(err error) flow.ErrorKind {
	var fe *flow.Error
	Expect(errors.As(err, &fe)).To(BeTrue(), "expected a flow.Error, got %v", err)
	return fe.Kind
}

var _ = Describe("Catalog", func() {
	It("defines every study flow", func() {
		cat, err := flows.NewCatalog(search.NewCanned(nil, ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cat.Names()).To(ConsistOf(
			"chatbot", "answerQuestions", "generateFlashcards", "generateFlashcardsFromDocument",
			"generateMcqs", "cartoonifyImage", "transcribeAndSummarize",
		))

		chat, ok := cat.Get(flows.Chatbot)
		Expect(ok).To(BeTrue())
		Expect(chat.Tools()).To(Equal([]string{"search"}))

		cartoon, _ := cat.Get(flows.CartoonifyImage)
		Expect(cartoon.MediaOutput()).To(Equal("cartoonMediaRef"))
		Expect(cartoon.Modalities()).To(ContainElement(llm.ModalityImage))
	})
})

var _ = Describe("Service", func() {
	var (
		model *fakeModel
		svc   *flows.Service
		pdf   media.Reference
	)

	BeforeEach(func() {
		model = &fakeModel{}
		cat, err := flows.NewCatalog(search.NewCanned(search.DefaultRules, ""))
		Expect(err).NotTo(HaveOccurred())
		svc = flows.NewService(flow.NewExecutor(model, zap.NewNop()), cat)

		pdf, err = media.Encode([]byte("%PDF-1.4 cells"), "application/pdf")
		Expect(err).NotTo(HaveOccurred())
	})

	Context("chatbot", func() {
		It("answers a weather question through the search tool", func() {
			model.say(llm.ToolCallPart(llm.ToolCall{ID: "1", Name: "search", Arguments: []byte(`{"query":"weather"}`)}))
			model.say(llm.TextPart(`{"answer":"It's sunny, 25°C."}`))

			ans, err := svc.Chat(context.Background(), flows.ChatInput{Query: "What's the weather like?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ans.Answer).To(Equal("It's sunny, 25°C."))

			observation := model.requests[1].Messages[2].Parts[0].ToolResult
			Expect(observation.Content).To(Equal("The weather is sunny, 25°C."))
		})

		It("requires a context string", func() {
			def, _ := svc.Catalog().Get(flows.Chatbot)

			_, err := svc.Executor().Run(context.Background(), def, map[string]any{"query": "hi"})
			Expect(kind(err)).To(Equal(flow.SchemaViolation))
			Expect(err).To(MatchError(ContainSubstring("context")))
			Expect(model.requests).To(BeEmpty())
		})

		It("replies from history and extends it", func() {
			model.say(llm.TextPart(`{"answer":"Watson and Crick."}`))

			h := conversation.History{
				{Role: conversation.RoleUser, Content: "What is DNA?"},
				{Role: conversation.RoleAssistant, Content: "A molecule."},
				{Role: conversation.RoleUser, Content: "Who described it?"},
			}
			ans, next, err := svc.Reply(context.Background(), h, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(ans.Answer).To(Equal("Watson and Crick."))
			Expect(next).To(HaveLen(4))
			Expect(next[3]).To(Equal(conversation.Turn{Role: conversation.RoleAssistant, Content: "Watson and Crick."}))
			Expect(model.requests[0].Messages[0].Text()).To(ContainSubstring("Context: user: What is DNA?\nassistant: A molecule.\n\nQuestion: Who described it?"))
		})

		It("sends questions with an attached document to document Q&A", func() {
			model.say(llm.TextPart(`{"answer":"Cells divide."}`))

			h := conversation.History{{Role: conversation.RoleUser, Content: "What happens in mitosis?"}}
			_, _, err := svc.Reply(context.Background(), h, &pdf)
			Expect(err).NotTo(HaveOccurred())

			req := model.requests[0]
			Expect(req.Tools).To(BeEmpty())
			Expect(req.Messages[0].Media()).To(HaveLen(1))
			Expect(req.Messages[0].Media()[0].IsPDF()).To(BeTrue())
		})

		It("refuses a history without a pending question", func() {
			_, h, err := svc.Reply(context.Background(), nil, nil)
			Expect(err).To(MatchError(conversation.ErrNoPendingQuery))
			Expect(h).To(BeEmpty())
		})
	})

	Context("generateMcqs", func() {
		It("returns the requested number of questions", func() {
			model.say(llm.TextPart(`{"questions":[
				{"question":"Q1","options":["a","b","c","d"],"answer":"a"},
				{"question":"Q2","options":["a","b","c","d"],"answer":"b"},
				{"question":"Q3","options":["a","b","c","d"],"answer":"c"}]}`))

			quiz, err := svc.MCQs(context.Background(), flows.MCQRequest{Document: pdf, Count: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(quiz.Questions).To(HaveLen(3))
			for _, q := range quiz.Questions {
				Expect(q.Options).To(ContainElement(q.Answer))
			}
			Expect(model.requests[0].Messages[0].Parts[0].Text).To(ContainSubstring("Create 3 multiple choice questions"))
		})

		It("defaults to five questions", func() {
			model.say(llm.TextPart(`{"questions":[]}`))

			_, err := svc.MCQs(context.Background(), flows.MCQRequest{Document: pdf})
			Expect(kind(err)).To(Equal(flow.OutputSchemaViolation))
			Expect(model.requests[0].Messages[0].Parts[0].Text).To(ContainSubstring("Create 5 multiple choice questions"))
		})

		DescribeTable("rejects counts that are not positive whole numbers before calling the model",
			func(count any) {
				def, ok := svc.Catalog().Get(flows.GenerateMcqs)
				Expect(ok).To(BeTrue())

				_, err := svc.Executor().Run(context.Background(), def, map[string]any{
					"documentMediaRef":  pdf.String(),
					"numberOfQuestions": count,
				})
				Expect(kind(err)).To(Equal(flow.SchemaViolation))
				Expect(model.requests).To(BeEmpty())
			},
			Entry("negative", -1.0),
			Entry("zero", 0.0),
			Entry("fractional", 2.5),
		)

		It("rejects a negative count passed through the typed request", func() {
			_, err := svc.MCQs(context.Background(), flows.MCQRequest{Document: pdf, Count: -1})
			Expect(kind(err)).To(Equal(flow.SchemaViolation))
			Expect(model.requests).To(BeEmpty())
		})

		It("rejects an answer that is not exactly one option", func() {
			model.say(llm.TextPart(`{"questions":[{"question":"Q","options":["a","b"],"answer":"z"}]}`))

			_, err := svc.MCQs(context.Background(), flows.MCQRequest{Document: pdf, Count: 1})
			Expect(kind(err)).To(Equal(flow.OutputSchemaViolation))
			Expect(err).To(MatchError(ContainSubstring("matches 0 options")))
		})

		It("rejects duplicate correct options", func() {
			model.say(llm.TextPart(`{"questions":[{"question":"Q","options":["a","a","b"],"answer":"a"}]}`))

			_, err := svc.MCQs(context.Background(), flows.MCQRequest{Document: pdf, Count: 1})
			Expect(kind(err)).To(Equal(flow.OutputSchemaViolation))
		})
	})

	Context("flashcards", func() {
		It("generates cards from text", func() {
			model.say(llm.TextPart(`{"flashcards":[{"term":"Cell","definition":"Basic unit of life."}]}`))

			out, err := svc.Flashcards(context.Background(), flows.FlashcardText{Text: "Cells are the basic unit of life."})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Flashcards).To(Equal([]flows.Flashcard{{Term: "Cell", Definition: "Basic unit of life."}}))
		})

		It("generates cards from a document", func() {
			model.say(llm.TextPart("```json\n{\"flashcards\":[{\"term\":\"A\",\"definition\":\"B\"}]}\n```"))

			out, err := svc.FlashcardsFromDocument(context.Background(), flows.FlashcardDocument{Document: pdf})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Flashcards).To(HaveLen(1))
			Expect(model.requests[0].Messages[0].Media()).To(HaveLen(1))
		})

		It("exports cards as plain text", func() {
			text := flows.ExportFlashcards([]flows.Flashcard{
				{Term: "Cell", Definition: "Unit of life."},
				{Term: "DNA", Definition: "Genetic material."},
			})
			Expect(text).To(Equal("Term: Cell\nDefinition: Unit of life.\n\nTerm: DNA\nDefinition: Genetic material.\n\n"))
		})
	})

	Context("media flows", func() {
		It("cartoonifies an image", func() {
			photo, err := media.Encode([]byte{0xff, 0xd8}, "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			drawn, err := media.Encode([]byte{0x89, 'P', 'N', 'G'}, "image/png")
			Expect(err).NotTo(HaveOccurred())
			model.say(llm.TextPart("Done."), llm.MediaPart(drawn))

			out, err := svc.Cartoonify(context.Background(), flows.ImageInput{Image: photo})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Cartoon.String()).To(Equal(drawn.String()))
		})

		It("fails the cartoon when no image comes back", func() {
			photo, _ := media.Encode([]byte{0xff, 0xd8}, "image/jpeg")
			model.say(llm.TextPart("Sorry."))

			_, err := svc.Cartoonify(context.Background(), flows.ImageInput{Image: photo})
			Expect(kind(err)).To(Equal(flow.OutputSchemaViolation))
		})

		It("transcribes and summarizes audio", func() {
			audio, err := media.Encode([]byte("OggS"), "audio/ogg")
			Expect(err).NotTo(HaveOccurred())
			model.say(llm.TextPart(`{"transcription":"Hello class.","summary":"- greeting"}`))

			out, err := svc.Transcribe(context.Background(), flows.AudioInput{Audio: audio})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(flows.Transcript{Transcription: "Hello class.", Summary: "- greeting"}))
		})

		It("rejects an input with no media", func() {
			_, err := svc.Transcribe(context.Background(), flows.AudioInput{})
			Expect(kind(err)).To(Equal(flow.SchemaViolation))
		})
	})
})
