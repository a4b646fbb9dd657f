package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/studyflow/cmd/studyflow/output"
	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/media"
)

const chatLongDesc string = `Chat with the study assistant.

On a terminal this opens an interactive chat window. Answers are rendered
as markdown. When stdin is not a terminal, or with --plain, every input
line is a question and answers are printed as wrapped text.

The conversation runs in-process against the configured model unless
--server names a running studyflow server, in which case every turn is
sent to its /chat endpoint.

Commands:
  /attach <file>  answer from a document instead of the conversation
  /detach         drop the attached document
  /reset          start a new conversation
  /help           list commands
  /quit           leave the chat

Examples:
  studyflow chat
  studyflow chat --attach notes.pdf
  studyflow chat --server http://localhost:8080
  echo "What is osmosis?" | studyflow chat`

const chatShortDesc string = "Chat with the study assistant"

const helpText = `/attach <file>  answer from a document instead of the conversation
/detach         drop the attached document
/reset          start a new conversation
/quit           leave the chat`

// replier answers the newest user turn of a history.
type replier interface {
	Reply(ctx context.Context, h conversation.History, document *media.Reference) (flows.Answer, conversation.History, error)
}

type chatCommander struct {
	globals   *setup.Globals
	serverURL string
	attach    string
	plain     bool
}

func NewChatCmd(globals *setup.Globals) *cobra.Command {
	cmder := &chatCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.serverURL, "server", "", "Chat through a running studyflow server instead of in-process")
	cmd.Flags().StringVar(&cmder.attach, "attach", "", "Document to answer questions from")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Read questions line by line even on a terminal")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	r, err := c.replier(cmd)
	if err != nil {
		return err
	}

	sess := &session{replier: r}
	if c.attach != "" {
		notice, err := sess.attach(c.attach)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), notice)
	}

	if c.plain || !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return runLines(cmd.Context(), sess, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Width(cmd.OutOrStdout()))
	}

	style := styles.LightStyle
	if termenv.HasDarkBackground() {
		style = styles.DarkStyle
	}

	m := newModel(cmd.Context(), sess, style)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat window: %w", err)
	}

	return nil
}

func (c *chatCommander) replier(cmd *cobra.Command) (replier, error) {
	if c.serverURL != "" {
		return newRemoteReplier(c.serverURL), nil
	}

	cfg, err := c.globals.Load()
	if err != nil {
		return nil, err
	}

	svc, err := setup.Service(cfg, c.globals.Logger(cmd, cfg))
	if err != nil {
		return nil, err
	}

	return svc, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// session holds the client side of a conversation: the history sent on
// every turn and the attached document, if any.
type session struct {
	replier  replier
	history  conversation.History
	document *media.Reference
	docName  string
}

func isCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

// command runs one slash command and returns the notice to show.
func (s *session) command(line string) (notice string, quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return "Bye.", true, nil
	case "/help":
		return helpText, false, nil
	case "/reset":
		s.history = nil
		return "Started a new conversation.", false, nil
	case "/detach":
		if s.document == nil {
			return "No document attached.", false, nil
		}
		name := s.docName
		s.document, s.docName = nil, ""
		return fmt.Sprintf("Detached %s.", name), false, nil
	case "/attach":
		if arg == "" {
			return "", false, fmt.Errorf("usage: /attach <file>")
		}
		notice, err := s.attach(arg)
		return notice, false, err
	default:
		return "", false, fmt.Errorf("unknown command %s (try /help)", name)
	}
}

func (s *session) attach(path string) (string, error) {
	ref, err := media.EncodeFile(path, "")
	if err != nil {
		return "", fmt.Errorf("could not attach %s: %w", path, err)
	}

	s.document, s.docName = &ref, filepath.Base(path)

	return fmt.Sprintf("Attached %s (%s, %d bytes). Questions are answered from it until /detach.",
		s.docName, ref.MediaType(), ref.Size()), nil
}

// ask sends question with the current history. The session is not changed;
// callers commit the returned history once they accept the answer.
func (s *session) ask(ctx context.Context, question string) (string, conversation.History, error) {
	h := s.history.Append(conversation.RoleUser, question)

	ans, extended, err := s.replier.Reply(ctx, h, s.document)
	if err != nil {
		return "", nil, err
	}

	return ans.Answer, extended, nil
}

func (s *session) commit(h conversation.History) {
	s.history = h
}

// runLines treats every non-empty input line as a question or command. A
// failed turn is reported and the conversation continues.
func runLines(ctx context.Context, sess *session, in io.Reader, out, errOut io.Writer, width int) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if isCommand(line) {
			notice, quit, err := sess.command(line)
			if err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(errOut, notice)
			if quit {
				return nil
			}
			continue
		}

		answer, h, err := sess.ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		sess.commit(h)

		fmt.Fprintln(out, output.Wrap(answer, width))
	}

	return scanner.Err()
}
