package runlog_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/runlog"
	"github.com/papercomputeco/studyflow/pkg/schema"
)

func answering(text string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, *llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Model:   "fake",
			Message: llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{llm.TextPart(text)}},
			Usage:   llm.Usage{InputTokens: 3, OutputTokens: 2},
		}, nil
	})
}

func kinds(nodes []*runlog.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Kind()
	}
	return out
}

var _ = Describe("Recorder", func() {
	var (
		ctx    context.Context
		storer *runlog.MemoryStorer
		rec    *runlog.Recorder
		def    *flow.Definition
		image  media.Reference
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = runlog.NewMemoryStorer()
		rec = runlog.NewRecorder(storer, zap.NewNop())

		def = flow.MustDefine(flow.Config{
			Name:   "describe",
			Input:  schema.Object(schema.Prop("image", schema.Media()), schema.Prop("query", schema.String())),
			Output: schema.Object(schema.Prop("answer", schema.String())),
			Prompt: "{{query}} {{media url=image}}",
		})

		var err error
		image, err = media.Encode([]byte{0x89, 'P', 'N', 'G'}, "image/png")
		Expect(err).NotTo(HaveOccurred())
	})

	run := func(gen llm.Generator) error {
		exec := flow.NewExecutor(gen, zap.NewNop(), flow.WithRecorder(rec))
		_, err := exec.Run(ctx, def, map[string]any{"image": image.String(), "query": "What is this?"})
		return err
	}

	It("stores a successful run as input, prompt, response and output", func() {
		Expect(run(answering(`{"answer":"a logo"}`))).To(Succeed())

		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(1))

		chain, err := storer.Descendants(ctx, leaves[0].Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(chain)).To(Equal([]string{runlog.KindInput, runlog.KindPrompt, runlog.KindResponse, runlog.KindOutput}))

		output := chain[3].Content.(map[string]any)
		Expect(output).To(HaveKeyWithValue("flow", "describe"))
		Expect(output["data"]).To(Equal(map[string]any{"answer": "a logo"}))
	})

	It("replaces media payloads with digests", func() {
		Expect(run(answering(`{"answer":"a logo"}`))).To(Succeed())

		roots, err := storer.Roots(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(HaveLen(1))

		data := roots[0].Content.(map[string]any)["data"].(map[string]any)
		Expect(data["query"]).To(Equal("What is this?"))
		Expect(data["image"]).To(Equal(map[string]any{
			"mime_type": "image/png",
			"sha256":    image.Digest(),
			"size":      float64(4),
		}))

		prompt, err := storer.GetByParent(ctx, &roots[0].Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(HaveLen(1))
		Expect(prompt[0].Content.(map[string]any)["data"]).To(ContainElement(HaveKey("media")))
	})

	It("records a failed run with an error leaf", func() {
		Expect(run(answering(`{}`))).To(MatchError(&flow.Error{Kind: flow.OutputSchemaViolation}))

		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(1))
		Expect(leaves[0].Kind()).To(Equal(runlog.KindError))
		Expect(leaves[0].Content.(map[string]any)["data"]).To(HaveKeyWithValue("kind", string(flow.OutputSchemaViolation)))
	})

	It("records a run that failed before rendering", func() {
		exec := flow.NewExecutor(answering(`{}`), zap.NewNop(), flow.WithRecorder(rec))
		_, err := exec.Run(ctx, def, map[string]any{"query": "no image"})
		Expect(err).To(MatchError(&flow.Error{Kind: flow.SchemaViolation}))

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(nodes)).To(Equal([]string{runlog.KindInput, runlog.KindError}))
	})

	It("converges identical runs on the same nodes", func() {
		Expect(run(answering(`{"answer":"a logo"}`))).To(Succeed())
		Expect(run(answering(`{"answer":"a logo"}`))).To(Succeed())

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(4))

		Expect(run(answering(`{"answer":"a drawing"}`))).To(Succeed())
		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(2))
	})

	It("places tool results between the two responses", func() {
		calls := 0
		gen := llm.GeneratorFunc(func(context.Context, *llm.Request) (*llm.Response, error) {
			calls++
			if calls == 1 {
				return &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{
					llm.ToolCallPart(llm.ToolCall{ID: "call_0", Name: "missing", Arguments: []byte(`{}`)}),
				}}}, nil
			}
			return answering(`{"answer":"done"}`).Generate(ctx, nil)
		})
		Expect(run(gen)).To(Succeed())

		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		chain, err := storer.Descendants(ctx, leaves[0].Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(chain)).To(Equal([]string{
			runlog.KindInput, runlog.KindPrompt, runlog.KindResponse,
			runlog.KindToolResults, runlog.KindResponse, runlog.KindOutput,
		}))
	})

	It("surfaces storage failures", func() {
		failing := runlog.NewRecorder(failingStorer{Storer: storer}, zap.NewNop())
		err := failing.Record(ctx, &flow.Trace{Flow: "describe"})
		Expect(err).To(MatchError(ContainSubstring("storing input node")))
	})
})

type failingStorer struct {
	runlog.Storer
}

func (failingStorer) Put(context.Context, *runlog.Node) error { return errors.New("disk full") }
