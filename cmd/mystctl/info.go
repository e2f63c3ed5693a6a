package main

import (
	"fmt"
	"os"

	"github.com/mmyneni/mystvault/internal/manifest"
	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file.myst>",
		Short: "Print a recovery manifest's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := manifest.Unmarshal(raw)
			if err != nil {
				return err
			}

			fmt.Printf("file_name:      %s\n", m.FileName)
			fmt.Printf("file_hash:      %s\n", m.FileHash)
			fmt.Printf("original_size:  %d bytes\n", m.OriginalSize)
			fmt.Printf("compressed:     %v\n", m.Compressed)
			fmt.Printf("reed_solomon:   %v\n", m.ReedSolomon)
			if m.ReedSolomonConfig != nil {
				fmt.Printf("  data_shards:  %d\n", m.ReedSolomonConfig.DataShards)
				fmt.Printf("  parity_shards: %d\n", m.ReedSolomonConfig.ParityShards)
			}
			fmt.Printf("password_protected: %v\n", m.Security.MasterEncryption.PasswordProtected)
			fmt.Printf("partitions:     %d\n", len(m.Partitions))
			for _, part := range m.Partitions {
				fmt.Printf("  [%d] size=%d replicas=%d\n", part.Index, part.Size, len(part.Fragments))
			}
			return nil
		},
	}
	return cmd
}
