package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"asynctimer"
	"asynctimer/asyncrt"
	"asynctimer/future"
)

var (
	raceDeadline string
	raceWork     string
	raceRestarts int
)

func init() {
	raceCmd.Flags().StringVar(&raceDeadline, "deadline", "10ms", "deadline of each race")
	raceCmd.Flags().StringVar(&raceWork, "work", "50ms", "how long the raced computation takes")
	raceCmd.Flags().IntVar(&raceRestarts, "restarts", 10, "restart an expired race at most this many times")
}

var raceCmd = &cobra.Command{
	Use:   "race",
	Short: "Race a computation against a deadline, restarting on expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		deadline, err := parseDuration(raceDeadline)
		if err != nil {
			return fmt.Errorf("invalid --deadline: %w", err)
		}
		work, err := parseDuration(raceWork)
		if err != nil {
			return fmt.Errorf("invalid --work: %w", err)
		}

		opts := s.timerOptions()
		inner, err := asynctimer.NewDelay(work, opts...)
		if err != nil {
			return err
		}
		defer inner.Close()
		timed, err := asynctimer.NewTimed[struct{}](inner, deadline, opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		expired := color.New(color.FgYellow)
		completed := color.New(color.FgGreen, color.Bold)
		exec := asyncrt.Config{Fuzz: s.cfg.Executor.Fuzz, Seed: s.cfg.Executor.Seed, Tracer: s.tracer}
		start := time.Now()

		for round := 0; ; round++ {
			res, err := asyncrt.BlockOn[future.Result[struct{}]](cmd.Context(), timed, exec)
			if err != nil {
				return err
			}
			elapsed := time.Since(start).Round(10 * time.Microsecond)
			if res.Err == nil {
				fmt.Fprintf(out, "%s after %v (%d restarts)\n", completed.Sprint("completed"), elapsed, round)
				return nil
			}
			var exp *asynctimer.Expired[struct{}]
			if !errors.As(res.Err, &exp) {
				return res.Err
			}
			fmt.Fprintf(out, "%s at %v: %v\n", expired.Sprint("expired"), elapsed, exp)
			if round >= raceRestarts {
				if err := exp.Close(); err != nil {
					return err
				}
				return fmt.Errorf("gave up after %d restarts", round)
			}
			if timed, err = exp.Retry(); err != nil {
				return err
			}
		}
	},
}
