// Package ui renders the conversation for terminal front ends.
package ui

import (
	"fmt"
	"io"
)

const (
	SpeakerUser    = "you"
	SpeakerDreamer = "dreamer"
	SpeakerSystem  = "system"
)

// UI receives status changes and transcript lines.
type UI interface {
	UpdateStatus(status string)
	Say(speaker, text string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string) {}
func (s SilentUI) Say(speaker, text string)   {}

// Console writes the transcript as plain lines. Status updates are dropped.
type Console struct {
	Out io.Writer
}

func (c Console) UpdateStatus(status string) {}

func (c Console) Say(speaker, text string) {
	if speaker == SpeakerDreamer {
		fmt.Fprintln(c.Out, text)
		return
	}
	fmt.Fprintf(c.Out, "[%s] %s\n", speaker, text)
}
