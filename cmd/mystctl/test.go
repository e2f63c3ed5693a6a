package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmyneni/mystvault/internal/pipeline"
	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Round-trip a small random file through upload/download to smoke-test a cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			p := newPipeline(cmd, cfg)

			dir, err := os.MkdirTemp("", "mystvault-test-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			input := filepath.Join(dir, "probe.bin")
			payload := make([]byte, 4096)
			if _, err := rand.Read(payload); err != nil {
				return err
			}
			if err := os.WriteFile(input, payload, 0o644); err != nil {
				return err
			}

			opts := pipeline.UploadOptions{
				Partitions:  cfg.Upload.Partitions,
				Redundancy:  cfg.Upload.Redundancy,
				Compression: cfg.Upload.Compression,
				ReedSolomon: cfg.Upload.ReedSolomon,
			}
			if _, err := p.Upload(context.Background(), input, opts); err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			output := filepath.Join(dir, "probe.out")
			if err := p.Download(context.Background(), input+".myst", output, pipeline.DownloadOptions{}); err != nil {
				return fmt.Errorf("download: %w", err)
			}

			got, err := os.ReadFile(output)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, payload) {
				return fmt.Errorf("round-trip mismatch: recovered file differs from input")
			}
			fmt.Println("cluster test: pass")
			return nil
		},
	}
	return cmd
}
