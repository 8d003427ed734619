package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchResults int

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Inspect episodic memory",
}

var memoriesSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find the conversation turns most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.index.SearchMemories(cmd.Context(), strings.Join(args, " "), searchResults)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No memories yet.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f  [%s] %s\n", r.Distance, r.Metadata["role"], r.Document)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(memoriesCmd)
	memoriesCmd.AddCommand(memoriesSearchCmd)
	memoriesSearchCmd.Flags().IntVarP(&searchResults, "results", "n", 5, "Number of results")
}
