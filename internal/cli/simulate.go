package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"match-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a rule file against a synthetic match snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.RulePath == "" {
			return errors.New("--rule is required")
		}
		if simulateOpts.HomeTeam == "" || simulateOpts.AwayTeam == "" {
			return errors.New("--home and --away are required")
		}
		if simulateOpts.HomePoss < 0 || simulateOpts.HomePoss > 100 {
			return errors.New("--home-possession must be between 0 and 100")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.RulePath, "rule", "", "Path to a JSON rule definition")
	simulateCmd.Flags().StringVar(&simulateOpts.HomeTeam, "home", "", "Home team name")
	simulateCmd.Flags().StringVar(&simulateOpts.AwayTeam, "away", "", "Away team name")
	simulateCmd.Flags().IntVar(&simulateOpts.HomeScore, "home-score", 0, "Home goals")
	simulateCmd.Flags().IntVar(&simulateOpts.AwayScore, "away-score", 0, "Away goals")
	simulateCmd.Flags().IntVar(&simulateOpts.Elapsed, "elapsed", 0, "Elapsed minutes")
	simulateCmd.Flags().IntVar(&simulateOpts.HomeSOT, "home-sot", 0, "Home shots on target")
	simulateCmd.Flags().IntVar(&simulateOpts.AwaySOT, "away-sot", 0, "Away shots on target")
	simulateCmd.Flags().Float64Var(&simulateOpts.HomePoss, "home-possession", 50, "Home possession percentage")
}
