// Command polisdemo replays one of spec.md §8's canonical scenarios
// against an in-memory polis cluster and reports the resulting
// government shape, the way senutpal-quorum/cmd/demo/main.go spins up
// an in-process cluster to exercise its own core, and
// QuangTung97-libpaxos/simulate drives a deterministic multi-node
// scenario without any real network.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var scenario string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "polisdemo",
		Short: "replay a deterministic polis scenario",
		Long: `polisdemo drives a small in-memory polis cluster through one of the
canonical scenarios from spec.md §8 and prints the resulting government
shape once the cluster has drained to quiescence.

Scenarios: ` + fmt.Sprint(scenarioNames()),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			run, ok := scenarios[scenario]
			if !ok {
				return fmt.Errorf("unknown scenario %q (want one of %v)", scenario, scenarioNames())
			}
			return run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "s1", "scenario to replay")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every step")

	return cmd
}
