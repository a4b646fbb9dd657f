package llm_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
)

var _ = Describe("Message", func() {
	It("separates text, media and tool calls", func() {
		img, err := media.Encode([]byte{0x89, 'P', 'N', 'G'}, "image/png")
		Expect(err).NotTo(HaveOccurred())

		msg := llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{
			llm.TextPart("Here "),
			llm.MediaPart(img),
			llm.TextPart("it is."),
			llm.ToolCallPart(llm.ToolCall{ID: "1", Name: "search"}),
		}}

		Expect(msg.Text()).To(Equal("Here it is."))
		Expect(msg.Media()).To(HaveLen(1))
		Expect(msg.Media()[0].IsImage()).To(BeTrue())
		Expect(msg.ToolCalls()).To(ConsistOf(llm.ToolCall{ID: "1", Name: "search"}))
	})
})

var _ = Describe("Request", func() {
	It("defaults to text output", func() {
		req := &llm.Request{}
		Expect(req.Wants(llm.ModalityText)).To(BeTrue())
		Expect(req.Wants(llm.ModalityImage)).To(BeFalse())
	})

	It("reports requested modalities", func() {
		req := &llm.Request{Modalities: []llm.Modality{llm.ModalityText, llm.ModalityImage}}
		Expect(req.Wants(llm.ModalityImage)).To(BeTrue())
	})
})

var _ = Describe("RateLimited", func() {
	var calls atomic.Int32

	counting := llm.GeneratorFunc(func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
		calls.Add(1)
		return &llm.Response{}, nil
	})

	BeforeEach(func() {
		calls.Store(0)
	})

	It("passes calls through when unlimited", func() {
		g := llm.NewRateLimited(counting, 0, 0)
		for i := 0; i < 10; i++ {
			_, err := g.Generate(context.Background(), &llm.Request{})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(calls.Load()).To(Equal(int32(10)))
	})

	It("stops waiting when the context ends", func() {
		g := llm.NewRateLimited(counting, 1, 1)
		_, err := g.Generate(context.Background(), &llm.Request{})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = g.Generate(ctx, &llm.Request{})
		Expect(err).To(HaveOccurred())
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("reports options fallbacks", func() {
		var opts *llm.Options
		Expect(opts.MaxTokensOr(512)).To(Equal(512))
		n := 64
		Expect((&llm.Options{MaxTokens: &n}).MaxTokensOr(512)).To(Equal(64))
	})
})

var _ = Describe("StatusError", func() {
	It("is matchable with errors.As", func() {
		err := error(&llm.StatusError{Backend: "ollama", StatusCode: 503, Body: "loading"})
		var se *llm.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Error()).To(Equal("ollama returned status 503: loading"))
	})
})

var _ = Describe("Defaulted", func() {
	var seen *llm.Request

	recording := llm.GeneratorFunc(func(_ context.Context, req *llm.Request) (*llm.Response, error) {
		seen = req
		return &llm.Response{}, nil
	})

	ptr := func(f float64) *float64 { return &f }

	BeforeEach(func() {
		seen = nil
	})

	It("fills unset options and keeps the flow's own", func() {
		maxTokens := 256
		g := llm.NewDefaulted(recording, llm.Options{Temperature: ptr(0.2), MaxTokens: &maxTokens})

		req := &llm.Request{Options: &llm.Options{Temperature: ptr(0.9)}}
		_, err := g.Generate(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())

		Expect(*seen.Options.Temperature).To(Equal(0.9))
		Expect(*seen.Options.MaxTokens).To(Equal(256))
		Expect(req.Options.MaxTokens).To(BeNil(), "the caller's request is not modified")
	})

	It("applies defaults to requests without options", func() {
		g := llm.NewDefaulted(recording, llm.Options{TopP: ptr(0.5)})

		_, err := g.Generate(context.Background(), &llm.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(*seen.Options.TopP).To(Equal(0.5))
	})

	It("passes requests through when no defaults are configured", func() {
		g := llm.NewDefaulted(recording, llm.Options{})

		req := &llm.Request{}
		_, err := g.Generate(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeIdenticalTo(req))
	})
})
