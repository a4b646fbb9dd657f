package flows

import (
	"context"

	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/media"
)

// Service runs catalog flows with typed inputs and outputs.
type Service struct {
	exec    *flow.Executor
	catalog *Catalog
}

func NewService(exec *flow.Executor, catalog *Catalog) *Service {
	return &Service{exec: exec, catalog: catalog}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

func (s *Service) Executor() *flow.Executor { return s.exec }

func (s *Service) Chat(ctx context.Context, in ChatInput) (Answer, error) {
	return flow.Invoke[Answer](ctx, s.exec, s.catalog.mustGet(Chatbot), in)
}

func (s *Service) AnswerQuestions(ctx context.Context, in DocumentQuestion) (Answer, error) {
	return flow.Invoke[Answer](ctx, s.exec, s.catalog.mustGet(AnswerQuestions), in)
}

func (s *Service) Flashcards(ctx context.Context, in FlashcardText) (Flashcards, error) {
	return flow.Invoke[Flashcards](ctx, s.exec, s.catalog.mustGet(GenerateFlashcards), in)
}

func (s *Service) FlashcardsFromDocument(ctx context.Context, in FlashcardDocument) (Flashcards, error) {
	return flow.Invoke[Flashcards](ctx, s.exec, s.catalog.mustGet(GenerateFlashcardsFromDocument), in)
}

func (s *Service) MCQs(ctx context.Context, in MCQRequest) (Quiz, error) {
	return flow.Invoke[Quiz](ctx, s.exec, s.catalog.mustGet(GenerateMcqs), in)
}

func (s *Service) Cartoonify(ctx context.Context, in ImageInput) (Cartoon, error) {
	return flow.Invoke[Cartoon](ctx, s.exec, s.catalog.mustGet(CartoonifyImage), in)
}

func (s *Service) Transcribe(ctx context.Context, in AudioInput) (Transcript, error) {
	return flow.Invoke[Transcript](ctx, s.exec, s.catalog.mustGet(TranscribeAndSummarize), in)
}

// Reply answers the newest user turn of h and returns h extended with the
// assistant's answer. With a document attached the question goes to the
// document Q&A flow and the history is not used as context.
func (s *Service) Reply(ctx context.Context, h conversation.History, document *media.Reference) (Answer, conversation.History, error) {
	in, err := conversation.ChatInput(h)
	if err != nil {
		return Answer{}, h, err
	}
	query := in["query"].(string)

	var ans Answer
	if document != nil && !document.IsZero() {
		ans, err = s.AnswerQuestions(ctx, DocumentQuestion{Document: *document, Query: query})
	} else {
		ans, err = s.Chat(ctx, ChatInput{Query: query, Context: in["context"].(string)})
	}
	if err != nil {
		return Answer{}, h, err
	}

	return ans, h.Append(conversation.RoleAssistant, ans.Answer), nil
}
