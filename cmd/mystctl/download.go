package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmyneni/mystvault/internal/pipeline"
	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	var (
		output         string
		masterPassword string
	)

	cmd := &cobra.Command{
		Use:   "download <file.myst>",
		Short: "Reconstruct a file from its recovery manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newPipeline(cmd, cfg)

			out := output
			if out == "" {
				out = strings.TrimSuffix(args[0], ".myst")
			}
			if err := p.Download(context.Background(), args[0], out, pipeline.DownloadOptions{MasterPassword: masterPassword}); err != nil {
				return err
			}
			fmt.Printf("downloaded %s -> %s\n", args[0], out)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output path (default: manifest name with .myst stripped)")
	cmd.Flags().StringVar(&masterPassword, "master-password", "", "password for a password-bound manifest")
	return cmd
}
