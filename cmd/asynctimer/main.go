package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"asynctimer/internal/prof"
	"asynctimer/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "asynctimer",
	Short:         "Inspect and exercise asynctimer backends",
	Long:          `asynctimer reports which timer backends this build supports and measures how they behave.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Root().PersistentFlags()
		var opts prof.Options
		opts.CPU, _ = flags.GetString("cpuprofile")
		opts.Mem, _ = flags.GetString("memprofile")
		opts.Trace, _ = flags.GetString("runtime-trace")
		s, err := prof.Start(opts)
		if err != nil {
			return err
		}
		profiling = s
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return profiling.Stop()
	},
}

var profiling *prof.Session

// main registers subcommands and persistent flags, then executes the root
// command. A failing command exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(raceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to asynctimer.toml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().String("backend", "", "timer backend (auto|posix|posix-thread|kqueue|threadpool|host|reactor)")
	rootCmd.PersistentFlags().String("reactor", "", "reactor for the reactor backend (heap|epoll)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (\"-\" for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "", "trace level (off|error|info|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "", "trace storage mode (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 0, "ring buffer capacity for ring mode")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")
	rootCmd.PersistentFlags().String("cpuprofile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("memprofile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		_ = profiling.Stop()
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
