package chatcmder

import (
	"bytes"
	"context"
	"net"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
	"github.com/papercomputeco/studyflow/server"
)

var _ = Describe("remote replier", func() {
	startServer := func(reply string) string {
		model := llm.GeneratorFunc(func(context.Context, *llm.Request) (*llm.Response, error) {
			return &llm.Response{
				Model:   "fake",
				Message: llm.Message{Role: llm.RoleAssistant, Parts: []llm.Part{llm.TextPart(reply)}},
			}, nil
		})

		srv, err := server.New(server.Config{}, model, search.NewCanned(nil, ""), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = srv.RunWithListener(listener)
		}()
		DeferCleanup(func() {
			srv.Shutdown()
			srv.Close()
		})

		return "http://" + listener.Addr().String()
	}

	It("sends the history and returns the extended one", func() {
		addr := startServer(`{"answer":"Osmosis is the diffusion of water."}`)

		h := conversation.History{{Role: conversation.RoleUser, Content: "What is osmosis?"}}
		ans, extended, err := newRemoteReplier(addr+"/").Reply(context.Background(), h, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Answer).To(Equal("Osmosis is the diffusion of water."))
		Expect(extended).To(HaveLen(2))
		Expect(extended[1].Role).To(Equal(conversation.RoleAssistant))
	})

	It("surfaces the server's error message", func() {
		addr := startServer(`{"answer":"unused"}`)

		h := conversation.History{{Role: conversation.RoleAssistant, Content: "Hello"}}
		_, _, err := newRemoteReplier(addr).Reply(context.Background(), h, nil)
		Expect(err).To(MatchError(conversation.ErrNoPendingQuery.Error()))
	})

	It("drives the line mode of the chat command", func() {
		addr := startServer(`{"answer":"Cells are the unit of life."}`)

		var out, errOut bytes.Buffer
		cmd := NewChatCmd(&setup.Globals{})
		cmd.SetIn(strings.NewReader("What is a cell?\n"))
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs([]string{"--server", addr})

		Expect(cmd.ExecuteContext(context.Background())).To(Succeed())
		Expect(out.String()).To(Equal("Cells are the unit of life.\n"))
	})
})
