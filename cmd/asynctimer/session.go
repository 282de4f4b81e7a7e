package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"asynctimer"
	"asynctimer/config"
	"asynctimer/driver"
	"asynctimer/trace"
)

// session is the per-command state shared by every subcommand: the effective
// configuration, the tracer and the timer options derived from both.
type session struct {
	cfg     config.Config
	cfgPath string
	tracer  trace.Tracer
	cleanup func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	flags := cmd.Root().PersistentFlags()

	if err := applyColorFlag(cmd); err != nil {
		return nil, err
	}

	cfgPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err == nil {
			cfg, cfgPath, err = config.Discover(wd)
		}
	}
	if err != nil {
		return nil, err
	}

	if backend, _ := flags.GetString("backend"); backend != "" {
		cfg.Timer.Backend = backend
	}
	if reactorName, _ := flags.GetString("reactor"); reactorName != "" {
		cfg.Timer.Reactor = reactorName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracer, cleanup, err := setupTracing(cmd, cfg.Trace)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, cfgPath: cfgPath, tracer: tracer, cleanup: cleanup}, nil
}

func (s *session) Close() {
	if s != nil && s.cleanup != nil {
		s.cleanup()
	}
}

// timerOptions returns options for the configured backend.
func (s *session) timerOptions() []asynctimer.Option {
	return []asynctimer.Option{asynctimer.WithConfig(s.cfg), asynctimer.WithTracer(s.tracer)}
}

// backendKind resolves the configured backend, following auto to the
// platform default.
func (s *session) backendKind() (driver.Kind, error) {
	kind, err := driver.ParseKind(s.cfg.Timer.Backend)
	if err != nil {
		return driver.KindAuto, err
	}
	if kind == driver.KindAuto {
		kind = driver.Platform()
	}
	return kind, nil
}

func applyColorFlag(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	return nil
}
