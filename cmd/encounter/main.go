// Command encounter runs encounters offline: AI vs AI simulation, replay of
// a stored event log and roster validation.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "encounter",
		Short:         "Run and inspect mech encounters",
		Long:          `encounter simulates AI vs AI battles, replays stored event logs and validates roster files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")

	logger := func(cmd *cobra.Command) zerolog.Logger {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.WarnLevel
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()
	}

	root.AddCommand(
		newSimulateCmd(logger),
		newReplayCmd(logger),
		newListCmd(logger),
		newValidateCmd(),
	)
	return root
}
