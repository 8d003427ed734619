package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/dreamer/internal/companion"
	"github.com/felixgeelhaar/dreamer/internal/ui"
)

// Chatter answers one message.
type Chatter interface {
	Chat(ctx context.Context, message string) (companion.Reply, error)
}

// TUI forwards ui.UI calls into a running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) Say(speaker, text string) {
	t.program.Send(LineMsg{Speaker: speaker, Text: text})
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

type Model struct {
	Title    string
	Status   string
	Lines    []string
	Input    textinput.Model
	Viewport viewport.Model
	Waiting  bool
	Quitting bool
	Ready    bool
	Width    int
	Height   int

	chatter Chatter
	ctx     context.Context
}

type StatusMsg string

type LineMsg struct {
	Speaker string
	Text    string
}

type replyMsg struct {
	text string
	err  error
}

func NewModel(ctx context.Context, title string, c Chatter) Model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.CharLimit = 4000
	in.Focus()

	return Model{
		Title:   title,
		Status:  "Ready",
		Input:   in,
		chatter: c,
		ctx:     ctx,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.Input.Value())
			if text == "" || m.Waiting {
				return m, nil
			}
			m.Input.Reset()
			m = m.appendLine(ui.SpeakerUser, text)
			m.Waiting = true
			m.Status = "Thinking..."
			return m, m.send(text)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-6)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 6
		}
		m.Viewport.SetContent(strings.Join(m.Lines, "\n"))

	case replyMsg:
		m.Waiting = false
		if msg.err != nil {
			m.Status = "Error"
			m = m.appendLine(ui.SpeakerSystem, errorStyle.Render(msg.err.Error()))
		} else {
			m.Status = "Ready"
			m = m.appendLine(ui.SpeakerDreamer, msg.text)
		}

	case LineMsg:
		m = m.appendLine(msg.Speaker, msg.Text)

	case StatusMsg:
		m.Status = string(msg)
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.chatter.Chat(m.ctx, text)
		if err != nil {
			return replyMsg{err: err}
		}
		return replyMsg{text: reply.Response}
	}
}

func (m Model) appendLine(speaker, text string) Model {
	prefix := speaker + ": "
	if speaker == ui.SpeakerUser {
		prefix = userStyle.Render(speaker) + ": "
	}
	m.Lines = append(m.Lines, prefix+text)
	m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
	m.Viewport.GotoBottom()
	return m
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(fmt.Sprintf(" %s ", m.Title))
	status := infoStyle.Render(fmt.Sprintf(" Status: %s ", m.Status))

	view := fmt.Sprintf("%s%s\n\n%s\n\n%s",
		header, status,
		m.Viewport.View(),
		m.Input.View())

	if m.Quitting {
		return view + "\n  Sweet dreams...\n"
	}

	return view
}
