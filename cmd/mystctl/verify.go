package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file.myst>",
		Short: "Probe fragment availability without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newPipeline(cmd, cfg)

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := manifest.Unmarshal(raw)
			if err != nil {
				return err
			}

			report := p.Transport.Verify(context.Background(), m)
			fmt.Printf("partitions: %d total, %d recoverable\n", report.PartitionsTotal, report.PartitionsRecoverable)
			if report.Recoverable {
				fmt.Println("recoverable: yes")
				return nil
			}
			fmt.Println("recoverable: no")
			os.Exit(1)
			return nil
		},
	}
	return cmd
}
