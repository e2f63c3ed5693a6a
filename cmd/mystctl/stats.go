package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Query the directory for the cluster's node count and average reliability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newPipeline(cmd, cfg)

			nodes, err := p.Directory.Nodes(context.Background(), 0, 0)
			if err != nil {
				return err
			}
			var totalReliability float64
			for _, n := range nodes {
				totalReliability += n.NormalizedReliability()
			}
			fmt.Printf("nodes: %d\n", len(nodes))
			if len(nodes) > 0 {
				fmt.Printf("avg reliability: %.2f\n", totalReliability/float64(len(nodes)))
			}
			return nil
		},
	}
	return cmd
}
