package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beamlink/beamlink/params"
)

// tiersCmd prints the resolved parameter set for every risk tier.
func tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Show the security parameter set per risk tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			for tier := params.TierRelaxed; tier <= params.TierHostile; tier++ {
				set := params.Resolve(tier)
				codec, err := set.ECC.NewCodec()
				if err != nil {
					return err
				}
				fmt.Printf("tier %d: ecc=%-8s shards=%d+%d window=%-6s rotation=%s\n",
					tier, set.ECC, codec.DataShards(), codec.ParityShards(),
					set.CorrelationWindow, set.RotationInterval)
			}
			return nil
		},
	}
}
