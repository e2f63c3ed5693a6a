package main

import (
	"github.com/mmyneni/mystvault/internal/config"
	"github.com/mmyneni/mystvault/internal/directory"
	"github.com/mmyneni/mystvault/internal/pipeline"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile)
}

func newPipeline(cmd *cobra.Command, cfg *config.Config) *pipeline.Pipeline {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = cfg.Directory.URL
	}
	return pipeline.New(directory.New(serverURL))
}
