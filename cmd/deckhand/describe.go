package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/deckhand/internal/presentation/graph"
	"github.com/aretw0/deckhand/internal/presentation/tui"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe <command>",
	Short: "Show the effective stage pipeline of a command",
	Long: `Prints the definition of a command after addon overrides, as Markdown with a
Mermaid chart. With --request-id the chart marks the stages already run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		name := args[0]
		defs, err := agent.Dispatcher.Definitions(cmd.Context(), &domain.CommandRequest{CommandName: name})
		if err != nil {
			return err
		}
		def, ok := defs[name]
		if !ok {
			return fmt.Errorf("command %s has no definition; it runs as a configuration call", name)
		}

		var overlay *graph.Overlay
		if id, _ := cmd.Flags().GetString("request-id"); id != "" {
			overlay = &graph.Overlay{CompletedStage: -1}
			stage, err := agent.Store.Load(cmd.Context(), id)
			switch {
			case errors.Is(err, domain.ErrStageNotFound):
			case err != nil:
				return err
			default:
				overlay.CompletedStage = stage
			}
		}

		out := cmd.OutOrStdout()
		rendered, err := tui.NewRenderer(out)(graph.Describe(name, def, overlay))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().String("request-id", "", "Mark the progress of this staged request")
}
