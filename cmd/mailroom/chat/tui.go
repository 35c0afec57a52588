package chatcmder

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/mailroom/pkg/cliui"
	"github.com/papercomputeco/mailroom/pkg/conversation"
)

var (
	chatTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	chatMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	chatDividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	chatUserStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true)
	chatAsstStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	chatFailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// chromeHeight is the number of lines around the viewport: header, rule,
// rule, status, input and help.
const chromeHeight = 6

type chatKeyMap struct {
	Send     key.Binding
	Abort    key.Binding
	Clear    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Abort, k.Clear, k.PageUp, k.PageDown, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Abort, k.Clear}, {k.PageUp, k.PageDown, k.Quit}}
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "ask")),
		Abort:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop answer")),
		Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	}
}

// answerMsg carries one applied stream event of a turn.
type answerMsg struct {
	turn *conversation.Turn
	msg  conversation.Message
	ok   bool
}

type chatModel struct {
	ctx     context.Context
	ctl     *conversation.Controller
	params  conversation.Params
	backend string

	turn   *conversation.Turn
	notice string

	// rendered caches glamour output of finished answers by message id.
	rendered map[string]string

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	keys     chatKeyMap

	width  int
	height int
	ready  bool
}

func runTUI(ctx context.Context, ctl *conversation.Controller, params conversation.Params, backendURL string) error {
	output := termenv.NewOutput(os.Stdout)
	lipgloss.SetColorProfile(output.EnvColorProfile())
	lipgloss.SetHasDarkBackground(output.HasDarkBackground())

	program := bubbletea.NewProgram(newChatModel(ctx, ctl, params, backendURL),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	if errors.Is(err, bubbletea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newChatModel(ctx context.Context, ctl *conversation.Controller, params conversation.Params, backendURL string) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your email"
	input.Prompt = "› "
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	return chatModel{
		ctx:      ctx,
		ctl:      ctl,
		params:   params,
		backend:  backendURL,
		rendered: map[string]string{},
		input:    input,
		spinner:  spin,
		viewport: viewport.New(80, 20),
		help:     help.New(),
		keys:     defaultKeyMap(),
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.input.Width = max(10, msg.Width-4)
		m.help.Width = msg.Width
		m.rendered = map[string]string{}
		m.ready = true
		m.refresh()
		return m, nil

	case answerMsg:
		if msg.turn != m.turn {
			return m, nil
		}
		if !msg.ok {
			m.turn = nil
			m.refresh()
			return m, nil
		}
		m.refresh()
		return m, nextCmd(msg.turn)

	case spinner.TickMsg:
		if m.turn == nil {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Abort):
		if m.turn != nil {
			m.ctl.Abort()
			m.turn = nil
			m.notice = "Answer stopped."
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if err := m.ctl.Conversation().Clear(); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = ""
			m.rendered = map[string]string{}
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		return m.submit()
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return m, nil
	}
	if m.turn != nil {
		m.notice = "Still answering. Press esc to stop the current answer."
		return m, nil
	}

	turn, err := m.ctl.Start(m.ctx, question, m.params)
	if err != nil {
		m.notice = err.Error()
		m.refresh()
		return m, nil
	}

	m.turn = turn
	m.notice = ""
	m.input.Reset()
	m.refresh()
	return m, bubbletea.Batch(nextCmd(turn), m.spinner.Tick)
}

// nextCmd pulls the next applied event of turn off the network.
func nextCmd(turn *conversation.Turn) bubbletea.Cmd {
	return func() bubbletea.Msg {
		msg, ok := turn.Next()
		return answerMsg{turn: turn, msg: msg, ok: ok}
	}
}

// refresh re-renders the transcript into the viewport and keeps it pinned
// to the bottom.
func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderTranscript() string {
	msgs := m.ctl.Conversation().Messages()
	if len(msgs) == 0 {
		return chatMutedStyle.Render("No messages yet. Ask something about your email.")
	}

	width := max(20, m.viewport.Width)
	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *chatModel) renderMessage(msg conversation.Message, width int) string {
	if msg.Role == conversation.RoleUser {
		return chatUserStyle.Render("you") + "\n" + lipgloss.NewStyle().Width(width).Render(msg.Content)
	}

	var b strings.Builder
	b.WriteString(chatAsstStyle.Render("assistant"))
	b.WriteString("\n")

	switch {
	case msg.Failed:
		b.WriteString(chatFailStyle.Width(width).Render(msg.Content))
	case msg.Streaming:
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content + "▍"))
	default:
		b.WriteString(m.renderAnswer(msg, width))
		if msg.Interrupted {
			b.WriteString("\n" + chatMutedStyle.Render("[interrupted]"))
		}
	}

	if len(msg.Sources) > 0 {
		chips := make([]string, 0, len(msg.Sources))
		for _, s := range msg.Sources {
			chips = append(chips, cliui.SourceChip(s))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(strings.Join(chips, " ")))
	}

	return b.String()
}

func (m *chatModel) renderAnswer(msg conversation.Message, width int) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := cliui.RenderMarkdownWidth(msg.Content, width)
	if err != nil {
		out = msg.Content
	}
	out = strings.Trim(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  " + m.spinner.View() + " starting..."
	}

	header := chatTitleStyle.Render("mailroom") + "  " + chatMutedStyle.Render(m.backend)
	rule := chatDividerStyle.Render(strings.Repeat("─", max(1, m.width)))

	status := ""
	switch {
	case m.turn != nil:
		status = m.spinner.View() + " " + chatMutedStyle.Render("answering...")
	case m.notice != "":
		status = chatMutedStyle.Render(m.notice)
	}

	return strings.Join([]string{
		header,
		rule,
		m.viewport.View(),
		rule,
		status,
		m.input.View(),
		m.help.View(m.keys),
	}, "\n")
}
