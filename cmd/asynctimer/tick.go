package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"asynctimer"
	"asynctimer/internal/observ"
	"asynctimer/internal/probe"
)

var (
	tickPeriod string
	tickCount  int
	tickRearm  string
)

func init() {
	tickCmd.Flags().StringVarP(&tickPeriod, "period", "p", "", "interval period (default from [interval].period)")
	tickCmd.Flags().IntVarP(&tickCount, "count", "n", 5, "number of ticks to observe")
	tickCmd.Flags().StringVar(&tickRearm, "rearm", "", "rearm mode (lazy|eager, default from [interval].rearm)")
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run an interval and print each tick with its gap",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		period := s.cfg.Interval.Period.Duration
		if tickPeriod != "" {
			if period, err = parseDuration(tickPeriod); err != nil {
				return fmt.Errorf("invalid --period: %w", err)
			}
		}
		opts := s.timerOptions()
		switch tickRearm {
		case "":
		case "lazy":
			opts = append(opts, asynctimer.WithRearm(asynctimer.RearmLazy))
		case "eager":
			opts = append(opts, asynctimer.WithRearm(asynctimer.RearmEager))
		default:
			return fmt.Errorf("invalid --rearm value %q (expected lazy|eager)", tickRearm)
		}

		out := cmd.OutOrStdout()
		late := color.New(color.FgYellow)
		fmt.Fprintf(out, "interval %v on %s\n", period, s.cfg.Timer.Backend)
		samples, err := probe.SampleInterval(cmd.Context(), period, tickCount, func(tick asynctimer.Tick, gap time.Duration) {
			line := fmt.Sprintf("  #%-4d %s  gap %8.3f ms", tick.Seq, tick.At.Format("15:04:05.000"), float64(gap)/float64(time.Millisecond))
			if gap > period+period/2 {
				line = late.Sprint(line)
			}
			fmt.Fprintln(out, line)
		}, opts...)
		if err != nil {
			return err
		}
		fmt.Fprint(out, observ.Summary([]observ.Report{observ.Summarize("interval", samples)}))
		return nil
	},
}
