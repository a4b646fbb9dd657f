package chatcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/studyflow/pkg/conversation"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("62")).
			Padding(0, 1).
			Bold(true)

	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryNotice
	entryError
)

type entry struct {
	kind entryKind
	text string
}

type replyMsg struct {
	answer  string
	history conversation.History
	err     error
}

// model is the interactive chat window. Entries are kept unrendered so the
// transcript can be re-wrapped when the window is resized.
type model struct {
	ctx     context.Context
	session *session
	style   string

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries []entry
	waiting bool
	ready   bool
	width   int
}

func newModel(ctx context.Context, sess *session, style string) *model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question, or /help"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.SetHeight(3)
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &model{
		ctx:      ctx,
		session:  sess,
		style:    style,
		textarea: ta,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		entries:  []entry{{kind: entryNotice, text: "Type a question and press Enter. /help lists commands, Esc quits."}},
	}
}

func (m *model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.add(entry{kind: entryError, text: msg.err.Error()})
		} else {
			m.session.commit(msg.history)
			m.add(entry{kind: entryAssistant, text: msg.answer})
		}

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit handles the text in the input box. Input is ignored while a
// question is in flight.
func (m *model) submit() tea.Cmd {
	if m.waiting {
		return nil
	}

	line := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	if line == "" {
		return nil
	}

	if isCommand(line) {
		notice, quit, err := m.session.command(line)
		if err != nil {
			m.add(entry{kind: entryError, text: err.Error()})
			return nil
		}
		if line == "/reset" {
			m.entries = nil
		}
		m.add(entry{kind: entryNotice, text: notice})
		if quit {
			return tea.Quit
		}
		return nil
	}

	m.add(entry{kind: entryUser, text: line})
	m.waiting = true

	return tea.Batch(m.spinner.Tick, m.ask(line))
}

func (m *model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, h, err := m.session.ask(m.ctx, question)
		return replyMsg{answer: answer, history: h, err: err}
	}
}

func (m *model) resize(width, height int) {
	m.width = width

	// header, border and the input box
	vpHeight := max(height-1-1-m.textarea.Height()-1, 0)
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(width)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.ready = true
	m.refresh()
}

func (m *model) add(e entry) {
	m.entries = append(m.entries, e)
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}

	blocks := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		blocks = append(blocks, m.render(e))
	}

	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *model) render(e entry) string {
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))

	switch e.kind {
	case entryUser:
		return wrap.Render(userStyle.Render("you ") + e.text)
	case entryAssistant:
		if m.renderer != nil {
			if out, err := m.renderer.Render(e.text); err == nil {
				return strings.Trim(out, "\n")
			}
		}
		return wrap.Render(e.text)
	case entryError:
		return wrap.Render(errorStyle.Render("error: " + e.text))
	default:
		return wrap.Render(noticeStyle.Render(e.text))
	}
}

func (m *model) status() string {
	doc := "no document"
	if m.session.docName != "" {
		doc = "document: " + m.session.docName
	}

	turns := len(m.session.history)
	line := fmt.Sprintf("studyflow chat │ %s │ %d turns", doc, turns)

	return ansi.Truncate(line, max(m.width-2, 1), "…")
}

func (m *model) View() string {
	if !m.ready {
		return "Starting chat..."
	}

	footer := borderStyle.Render(strings.Repeat("─", max(m.width, 1)))
	if m.waiting {
		footer = m.spinner.View() + " thinking..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s",
		headerStyle.Width(m.width).Render(m.status()),
		m.viewport.View(),
		footer,
		m.textarea.View(),
	)
}
