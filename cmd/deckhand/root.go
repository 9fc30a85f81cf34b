package main

import (
	"fmt"
	"os"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Deckhand runs deployment commands on a stack host",
	Long: `Deckhand receives command requests from the control plane, runs their stage
pipelines as supervised activities and reports a bounded status document.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags override their DECKHAND_* variables
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Append logs to this file instead of stderr")
	flags.String("stage-backend", "", "Stage store backend (file, redis, sqlite, memory)")
	flags.String("stage-dir", "", "Directory of the file stage store")
	flags.String("metadata-file", "", "Host metadata document")
	flags.String("hooks-root", "", "Root directory of hook actions")
	flags.String("instance-id", "", "Instance id of this host")
}

// loadConfig reads the environment and applies flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"log-level":     &cfg.LogLevel,
		"log-file":      &cfg.LogFile,
		"stage-backend": &cfg.StageBackend,
		"stage-dir":     &cfg.StageDir,
		"metadata-file": &cfg.MetadataFile,
		"hooks-root":    &cfg.HooksRoot,
		"instance-id":   &cfg.InstanceID,
	}
	for name, target := range overrides {
		if cmd.Flags().Changed(name) {
			*target, _ = cmd.Flags().GetString(name)
		}
	}
	return cfg, cfg.Validate()
}

// newAgent builds the agent for cmd.
func newAgent(cmd *cobra.Command) (*cli.Agent, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	agent, err := cli.NewAgent(cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing agent: %w", err)
	}
	return agent, nil
}
