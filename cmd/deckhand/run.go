package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/request"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <request|file|url|->",
	Short: "Run one command request and print its report",
	Long: `Runs a command request given inline as JSON, as a file path, as an http(s)
URL or on stdin ("-"), and prints the bounded status report on stdout.
Requests this host must not run exit with status 1.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newAgent(cmd)
		if err != nil {
			return err
		}
		defer agent.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Stop()

		cfnName, _ := cmd.Flags().GetString("cfn-command-name")
		invocationID, _ := cmd.Flags().GetString("invocation-id")
		dispatcherID, _ := cmd.Flags().GetString("dispatcher-id")

		req, err := request.Load(ctx, args[0], domain.Invocation{
			CfnCommandName: cfnName,
			InvocationID:   invocationID,
			DispatcherID:   dispatcherID,
		})
		if err != nil {
			return err
		}

		result, err := agent.Processor.Execute(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrInadmissible) {
				agent.Logger.Warn("Command rejected", "command", req.CanonicalName(), "err", err)
			}
			return err
		}

		_, data, err := agent.Processor.Report(result)
		if err != nil {
			agent.Logger.Warn("Report exceeds the size budget", "err", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		if path := agent.Config.MetricsTextfile; path != "" {
			if err := agent.Metrics.WriteTextfile(path); err != nil {
				agent.Logger.Warn("Failed to export metrics", "err", err)
			}
		}
		if sig := ctx.Signal(); sig != nil {
			return fmt.Errorf("interrupted by %v", sig)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("cfn-command-name", "", "Command name registered with the stack, used for leader election")
	runCmd.Flags().String("invocation-id", "", "Invocation id of this delivery")
	runCmd.Flags().String("dispatcher-id", "", "Id of the dispatcher that delivered the request")
}
