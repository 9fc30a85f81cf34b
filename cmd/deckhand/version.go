package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/deckhand"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of deckhand",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deckhand version %s\n", strings.TrimSpace(deckhand.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
