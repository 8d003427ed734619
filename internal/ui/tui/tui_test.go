package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/dreamer/internal/companion"
	"github.com/felixgeelhaar/dreamer/internal/ui"
)

type echoChatter struct {
	err error
}

func (e echoChatter) Chat(ctx context.Context, message string) (companion.Reply, error) {
	if e.err != nil {
		return companion.Reply{}, e.err
	}
	return companion.Reply{Response: "echo: " + message}, nil
}

func ready(t *testing.T, c Chatter) Model {
	t.Helper()
	m := NewModel(context.Background(), "Dreamer", c)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestModel_ChatRoundTrip(t *testing.T) {
	m := ready(t, echoChatter{})
	m.Input.SetValue("I love hiking")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if !m.Waiting || m.Status != "Thinking..." {
		t.Errorf("expected waiting state, got %+v", m.Status)
	}
	if m.Input.Value() != "" {
		t.Errorf("expected input cleared, got %q", m.Input.Value())
	}
	if cmd == nil {
		t.Fatal("expected a chat command")
	}

	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.Waiting || m.Status != "Ready" {
		t.Errorf("expected ready state, got %q", m.Status)
	}
	if len(m.Lines) != 2 || !strings.HasSuffix(m.Lines[1], "dreamer: echo: I love hiking") {
		t.Errorf("unexpected transcript %q", m.Lines)
	}
	if !strings.Contains(m.View(), "Status: Ready") {
		t.Errorf("expected status in view, got %q", m.View())
	}
}

func TestModel_ChatError(t *testing.T) {
	m := ready(t, echoChatter{err: errors.New("model offline")})
	m.Input.SetValue("hello")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)

	if m.Status != "Error" {
		t.Errorf("expected error status, got %q", m.Status)
	}
	if !strings.Contains(m.Lines[len(m.Lines)-1], "model offline") {
		t.Errorf("expected error line, got %q", m.Lines)
	}
}

func TestModel_IgnoresEmptyInput(t *testing.T) {
	m := ready(t, echoChatter{})
	m.Input.SetValue("   ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no command for blank input")
	}
	if len(next.(Model).Lines) != 0 {
		t.Error("expected empty transcript")
	}
}

func TestModel_ExternalMessages(t *testing.T) {
	m := ready(t, echoChatter{})

	next, _ := m.Update(LineMsg{Speaker: ui.SpeakerSystem, Text: "memory opened"})
	next, _ = next.(Model).Update(StatusMsg("Dreaming"))
	m = next.(Model)

	if m.Status != "Dreaming" || len(m.Lines) != 1 || m.Lines[0] != "system: memory opened" {
		t.Errorf("unexpected model state %q %q", m.Status, m.Lines)
	}
}

func TestModel_Quit(t *testing.T) {
	m := ready(t, echoChatter{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(Model).Quitting || cmd == nil {
		t.Error("expected quit")
	}
	if !strings.Contains(next.(Model).View(), "Sweet dreams") {
		t.Error("expected farewell in view")
	}
}
