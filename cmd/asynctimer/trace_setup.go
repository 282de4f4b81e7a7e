package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asynctimer/config"
	"asynctimer/trace"
)

// setupTracing builds the tracer from the [trace] section, with trace flags
// overriding it. The session hands it to every timer it builds. The cleanup
// stops the heartbeat, dumps a ring buffer and closes the tracer.
func setupTracing(cmd *cobra.Command, tc config.TraceConfig) (trace.Tracer, func(), error) {
	flags := cmd.Root().PersistentFlags()

	if flags.Changed("trace") {
		tc.Output, _ = flags.GetString("trace")
	}
	if flags.Changed("trace-level") {
		tc.Level, _ = flags.GetString("trace-level")
	}
	if flags.Changed("trace-mode") {
		tc.Mode, _ = flags.GetString("trace-mode")
	}
	if flags.Changed("trace-ring-size") {
		tc.RingSize, _ = flags.GetInt("trace-ring-size")
	}
	if flags.Changed("trace-heartbeat") {
		tc.Heartbeat.Duration, _ = flags.GetDuration("trace-heartbeat")
	}
	// An explicit output with no level traces at info.
	if flags.Changed("trace") && !flags.Changed("trace-level") && (tc.Level == "" || tc.Level == "off") {
		tc.Level = "info"
	}

	level, err := trace.ParseLevel(tc.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trace level: %w", err)
	}
	if level == trace.LevelOff {
		return trace.Nop, func() {}, nil
	}

	mode, err := trace.ParseMode(tc.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trace mode: %w", err)
	}
	format, err := trace.ParseFormat(tc.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trace format: %w", err)
	}
	output := tc.Output
	if output == "stderr" {
		output = "-"
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: output,
		RingSize:   tc.RingSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	var heartbeat *trace.Heartbeat
	if tc.Heartbeat.Duration > 0 {
		heartbeat = trace.StartHeartbeat(tracer, tc.Heartbeat.Duration)
	}

	cleanup := func() {
		if heartbeat != nil {
			heartbeat.Stop()
		}
		if ring, ok := tracer.(*trace.RingTracer); ok {
			if err := ring.Dump(os.Stderr, format); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
			}
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}
