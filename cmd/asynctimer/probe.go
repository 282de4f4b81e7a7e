package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"asynctimer/driver"
	"asynctimer/internal/observ"
	"asynctimer/internal/probe"
	"asynctimer/internal/ui"
)

var (
	probeCount     int
	probeDelay     string
	probeJobs      int
	probeBackends  []string
	probeUI        string
	probeSave      string
	probeCompare   string
	probeTolerance float64
)

func init() {
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 0, "timers per backend (default from [probe].count)")
	probeCmd.Flags().StringVar(&probeDelay, "delay", "", "delay of each timer (default from [probe].delay)")
	probeCmd.Flags().IntVarP(&probeJobs, "jobs", "j", 0, "executors running at once (default from [probe].jobs)")
	probeCmd.Flags().StringSliceVar(&probeBackends, "backends", nil, "backends to probe (default: the selected backend; \"all\" for every supported one)")
	probeCmd.Flags().StringVar(&probeUI, "ui", "auto", "progress UI (auto|on|off)")
	probeCmd.Flags().StringVar(&probeSave, "save", "", "write the run as a msgpack baseline")
	probeCmd.Flags().StringVar(&probeCompare, "compare", "", "compare against a saved baseline")
	probeCmd.Flags().Float64Var(&probeTolerance, "tolerance", 0.5, "allowed p99 slack growth in ms before --compare fails")
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Measure timer slack by arming many concurrent one-shot timers",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := probeOptions(s)
		if err != nil {
			return err
		}
		mode, err := parseProgressMode(probeUI)
		if err != nil {
			return err
		}

		var res *probe.Result
		if mode.showProgress(cmd.OutOrStdout(), s.tracer.Enabled()) {
			res, err = runProbeWithUI(cmd.Context(), opts)
		} else {
			res, err = probe.Run(cmd.Context(), opts)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprint(out, observ.Summary(res.Reports))
		fmt.Fprint(out, res.Phases.Summary())

		if probeSave != "" {
			if err := observ.Save(probeSave, observ.NewBaseline(res.Reports, res.Phases.Report())); err != nil {
				return fmt.Errorf("save baseline: %w", err)
			}
			fmt.Fprintf(out, "baseline written to %s\n", probeSave)
		}
		if probeCompare != "" {
			return compareBaseline(out, probeCompare, res.Reports)
		}
		return nil
	},
}

func probeOptions(s *session) (probe.Options, error) {
	pc := s.cfg.Probe
	opts := probe.Options{
		Count:  pc.Count,
		Delay:  pc.Delay.Duration,
		Jobs:   pc.Jobs,
		Timer:  s.timerOptions(),
		Fuzz:   s.cfg.Executor.Fuzz,
		Seed:   s.cfg.Executor.Seed,
		Tracer: s.tracer,
	}
	if probeCount > 0 {
		opts.Count = probeCount
	}
	if probeJobs > 0 {
		opts.Jobs = probeJobs
	}
	if probeDelay != "" {
		d, err := parseDuration(probeDelay)
		if err != nil {
			return opts, fmt.Errorf("invalid --delay: %w", err)
		}
		opts.Delay = d
	}
	if probeSave == "" {
		probeSave = pc.Baseline
	}

	switch {
	case len(probeBackends) == 1 && strings.EqualFold(probeBackends[0], "all"):
		for _, k := range driver.Kinds() {
			if k != driver.KindNone {
				opts.Backends = append(opts.Backends, k)
			}
		}
	case len(probeBackends) > 0:
		for _, name := range probeBackends {
			k, err := driver.ParseKind(name)
			if err != nil {
				return opts, err
			}
			opts.Backends = append(opts.Backends, k)
		}
	default:
		k, err := s.backendKind()
		if err != nil {
			return opts, err
		}
		opts.Backends = []driver.Kind{k}
	}
	return opts, nil
}

func runProbeWithUI(ctx context.Context, opts probe.Options) (*probe.Result, error) {
	events := make(chan probe.Event, 64)
	opts.Events = events
	names := make([]string, len(opts.Backends))
	for i, k := range opts.Backends {
		names[i] = k.String()
	}

	type outcome struct {
		res *probe.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := probe.Run(ctx, opts)
		close(events)
		done <- outcome{res: res, err: err}
	}()

	model := ui.NewProbeModel(fmt.Sprintf("probing %d timers of %v", opts.Count, opts.Delay), names, opts.Count, events)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("progress ui: %w", err)
	}
	o := <-done
	return o.res, o.err
}

var errRegressed = errors.New("slack regressed against baseline")

func compareBaseline(out io.Writer, path string, cur []observ.Report) error {
	base, err := observ.Load(path)
	if err != nil {
		return err
	}
	bad := color.New(color.FgRed, color.Bold)
	good := color.New(color.FgGreen)
	regressed := false
	fmt.Fprintf(out, "compared with %s (%s):\n", path, base.Created.Format("2006-01-02 15:04:05"))
	for _, d := range observ.Compare(base.Reports, cur, probeTolerance) {
		verdict := good.Sprint("ok")
		if d.Regressed {
			verdict = bad.Sprint("regressed")
			regressed = true
		}
		fmt.Fprintf(out, "  %-12s p50 %+7.3f ms  p99 %+7.3f ms  %s\n", d.Backend, d.P50MS, d.P99MS, verdict)
	}
	if regressed {
		return errRegressed
	}
	return nil
}
