package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/deckhand/internal/presentation/tui"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/spf13/cobra"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Inspect and repair stage watermarks",
	Long:  `Staged commands persist the last stage run per request id. These commands show or remove those records.`,
}

var stagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List request ids with a stage watermark",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		ids, err := agent.Store.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		palette := tui.NewPalette(out)
		if len(ids) == 0 {
			fmt.Fprintln(out, palette.Muted("No staged requests."))
			return nil
		}
		for _, id := range ids {
			stage, err := agent.Store.Load(cmd.Context(), id)
			switch {
			case errors.Is(err, domain.ErrStageNotFound):
				continue
			case err != nil:
				fmt.Fprintf(out, "%s\t%s\n", palette.Key(id), palette.Muted(err.Error()))
			default:
				fmt.Fprintf(out, "%s\t%d\n", palette.Key(id), stage)
			}
		}
		return nil
	},
}

var stagesShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Print the stage watermark of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		stage, err := agent.Store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("request %s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), stage)
		return nil
	},
}

var stagesClearCmd = &cobra.Command{
	Use:   "clear <request-id>",
	Short: "Remove the stage watermark of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		if err := agent.Store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		agent.Logger.Info("Cleared stage watermark", "request_id", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.AddCommand(stagesListCmd, stagesShowCmd, stagesClearCmd)
}
