package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			fmt.Printf("directory.url:        %s\n", cfg.Directory.URL)
			fmt.Printf("upload.partitions:    %d\n", cfg.Upload.Partitions)
			fmt.Printf("upload.redundancy:    %d\n", cfg.Upload.Redundancy)
			fmt.Printf("upload.compression:   %v\n", cfg.Upload.Compression)
			fmt.Printf("upload.reed_solomon:  %v\n", cfg.Upload.ReedSolomon)
			fmt.Printf("storage.datadir:      %s\n", cfg.Storage.DataDir)
			fmt.Printf("server.http_port:     %d\n", cfg.Server.HTTPPort)
			return nil
		},
	}
}
