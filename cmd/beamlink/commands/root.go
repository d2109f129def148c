// Package commands implements the beamlink demonstration CLI.
package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/beamlink/beamlink/params"
)

var (
	tierFlag int
	verbose  bool
)

// Execute builds the command tree and runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "beamlink",
		Short: "Line-of-sight secure session demonstrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
			if tierFlag < int(params.TierRelaxed) || tierFlag > int(params.TierHostile) {
				return fmt.Errorf("tier %d out of range 0..3", tierFlag)
			}
			return nil
		},
	}

	root.PersistentFlags().IntVar(&tierFlag, "tier", int(params.TierStandard), "risk tier 0 (relaxed) to 3 (hostile)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(demoCmd(), tiersCmd())
	return root.Execute()
}
