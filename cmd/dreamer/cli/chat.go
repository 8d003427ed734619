package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dreamer/internal/ui"
	"github.com/felixgeelhaar/dreamer/internal/ui/tui"
)

var interactive bool

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message, or start an interactive session with -i",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive && len(args) == 0 {
			return errors.New("a message is required unless --interactive is set")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if interactive {
			model := tui.NewModel(cmd.Context(), "Dreamer", a.companion)
			program := tea.NewProgram(model, tea.WithAltScreen())
			u := tui.NewTUI(program)
			go u.Say(ui.SpeakerDreamer, a.companion.Question(cmd.Context()))

			if _, err := program.Run(); err != nil {
				return fmt.Errorf("interactive session failed: %w", err)
			}
			return nil
		}

		out := ui.Console{Out: cmd.OutOrStdout()}
		reply, err := a.companion.Chat(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		for _, m := range reply.RelatedMemories {
			out.Say(ui.SpeakerSystem, "remembered: "+m.Document)
		}
		out.Say(ui.SpeakerDreamer, reply.Response)
		return nil
	},
}

var dreamCmd = &cobra.Command{
	Use:   "dream",
	Short: "Dream about what Dreamer knows of you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ui.Console{Out: cmd.OutOrStdout()}.Say(ui.SpeakerDreamer, a.companion.Dream(cmd.Context()))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(dreamCmd)
	chatCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive TUI")
}
