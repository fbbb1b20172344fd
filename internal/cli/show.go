package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"match-alerts/internal/app"
)

var (
	showLimit    int
	showFires    bool
	showPatterns bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent signal samples, fired alerts, or patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showFires && showPatterns {
			return fmt.Errorf("--fires and --patterns are mutually exclusive")
		}

		opts := app.ShowOptions{
			Limit:    showLimit,
			Fires:    showFires,
			Patterns: showPatterns,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showFires, "fires", false, "Show fired alerts instead of samples")
	showCmd.Flags().BoolVar(&showPatterns, "patterns", false, "Show detected patterns instead of samples")
}
