package main

import (
	"fmt"
	"sort"

	"github.com/aretw0/deckhand/internal/validator"
	"github.com/aretw0/deckhand/pkg/adapters/process"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <definitions.yaml>",
	Short: "Check command definitions for consistency",
	Long: `Decodes a command definitions document (or a metadata document holding
command_definitions) and reports incomplete stages and actions.

With --infra, infra actions are checked against the scripts of that registry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []validator.Option
		if infraPath, _ := cmd.Flags().GetString("infra"); infraPath != "" {
			scripts, err := process.LoadInfra(infraPath)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(scripts))
			for name := range scripts {
				names = append(names, name)
			}
			sort.Strings(names)
			opts = append(opts, validator.WithInfra(names))
		}

		names, err := validator.ValidateFile(args[0], opts...)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d command definition(s) are valid! ✅\n", len(names))
		return nil
	},
}

func init() {
	validateCmd.Flags().String("infra", "", "Infra registry to check infra actions against")
	rootCmd.AddCommand(validateCmd)
}
