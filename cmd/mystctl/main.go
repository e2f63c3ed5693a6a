// Command mystctl is the mystvault client CLI: upload, download,
// verify, inspect, and exercise a cluster, generalized from the
// teacher's cmd/client/main.go flag-driven disperse/retrieve tool into
// a github.com/spf13/cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mystctl",
		Short: "mystvault client: upload, download, and inspect encrypted objects",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	root.PersistentFlags().String("server", "", "directory service URL (overrides config)")

	root.AddCommand(
		newUploadCmd(),
		newDownloadCmd(),
		newVerifyCmd(),
		newInfoCmd(),
		newStatsCmd(),
		newConfigCmd(),
		newTestCmd(),
	)
	return root
}
