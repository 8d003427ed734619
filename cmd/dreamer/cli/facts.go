package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dreamer/internal/store"
)

var (
	factsLimit      int
	factsOrder      string
	factsConfidence float64
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Inspect and edit stored facts",
}

var factsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := parseOrder(factsOrder)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		facts, err := s.ListFacts(cmd.Context(), store.ListOptions{Order: order, Limit: factsLimit})
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No facts known yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tCONTENT\tCONFIDENCE\tCREATED")
		for _, f := range facts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\n",
				f.ID, f.Category, f.Content, f.Confidence, f.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var factsAddCmd = &cobra.Command{
	Use:   "add [category] [content]",
	Short: "Add a fact by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		f, err := s.AddFact(cmd.Context(), args[0], args[1], factsConfidence)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fact saved: #%d %s: %s\n", f.ID, f.Category, f.Content)
		return nil
	},
}

func parseOrder(s string) (store.Order, error) {
	switch s {
	case "", "recent":
		return store.OrderMostRecentFirst, nil
	case "insertion":
		return store.OrderInsertion, nil
	default:
		return 0, fmt.Errorf("unknown order %q (want recent or insertion)", s)
	}
}

func init() {
	RootCmd.AddCommand(factsCmd)
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsAddCmd)
	factsListCmd.Flags().IntVar(&factsLimit, "limit", 0, "Maximum number of facts (0 for all)")
	factsListCmd.Flags().StringVar(&factsOrder, "order", "recent", "Sort order: recent or insertion")
	factsAddCmd.Flags().Float64Var(&factsConfidence, "confidence", 1.0, "Confidence score")
}
