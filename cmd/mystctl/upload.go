package main

import (
	"context"
	"fmt"

	"github.com/mmyneni/mystvault/internal/pipeline"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		partitions     int
		redundancy     int
		masterPassword string
		noCompression  bool
		noReedSolomon  bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Encrypt, erasure-code, and distribute a file across storage nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newPipeline(cmd, cfg)

			opts := pipeline.UploadOptions{
				Partitions:     partitions,
				Redundancy:     redundancy,
				Compression:    !noCompression,
				ReedSolomon:    !noReedSolomon,
				MasterPassword: masterPassword,
			}
			if !cmd.Flags().Changed("partitions") {
				opts.Partitions = cfg.Upload.Partitions
			}
			if !cmd.Flags().Changed("redundancy") {
				opts.Redundancy = cfg.Upload.Redundancy
			}
			if !cmd.Flags().Changed("no-compression") {
				opts.Compression = cfg.Upload.Compression
			}
			if !cmd.Flags().Changed("no-reed-solomon") {
				opts.ReedSolomon = cfg.Upload.ReedSolomon
			}
			m, err := p.Upload(context.Background(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %s: %d partitions, file_hash=%s, manifest=%s.myst\n",
				args[0], len(m.Partitions), m.FileHash, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&partitions, "partitions", 10, "number of data shards (D)")
	cmd.Flags().IntVar(&redundancy, "redundancy", 3, "replica count per shard (R)")
	cmd.Flags().StringVar(&masterPassword, "master-password", "", "bind the master key to a password")
	cmd.Flags().BoolVar(&noCompression, "no-compression", false, "disable DEFLATE compression")
	cmd.Flags().BoolVar(&noReedSolomon, "no-reed-solomon", false, "disable Reed-Solomon erasure coding")
	return cmd
}
