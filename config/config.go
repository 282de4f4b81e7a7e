// Package config loads asynctimer.toml.
//
// A file is optional. Keys left out keep their Default values; unknown keys
// are rejected so typos do not silently fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"asynctimer/driver"
	"asynctimer/trace"
)

// FileName is the configuration file searched for by Find.
const FileName = "asynctimer.toml"

// Reactor names accepted by [timer].reactor.
const (
	ReactorHeap  = "heap"
	ReactorEpoll = "epoll"
)

// Rearm modes accepted by [interval].rearm.
const (
	RearmLazy  = "lazy"
	RearmEager = "eager"
)

type Config struct {
	Timer    TimerConfig    `toml:"timer"`
	Interval IntervalConfig `toml:"interval"`
	Executor ExecutorConfig `toml:"executor"`
	Trace    TraceConfig    `toml:"trace"`
	Probe    ProbeConfig    `toml:"probe"`
}

type TimerConfig struct {
	// Backend is a driver kind name; empty or "auto" selects the platform
	// default.
	Backend string `toml:"backend"`
	// Signal is the real-time signal of the posix backend; 0 uses
	// driver.DefaultSignal.
	Signal  int    `toml:"signal"`
	Reactor string `toml:"reactor"`
}

type IntervalConfig struct {
	Rearm  string   `toml:"rearm"`
	Period Duration `toml:"period"`
}

type ExecutorConfig struct {
	Fuzz bool   `toml:"fuzz"`
	Seed uint64 `toml:"seed"`
}

type TraceConfig struct {
	Level     string   `toml:"level"`
	Mode      string   `toml:"mode"`
	Format    string   `toml:"format"`
	Output    string   `toml:"output"`
	RingSize  int      `toml:"ring_size"`
	Heartbeat Duration `toml:"heartbeat"`
}

type ProbeConfig struct {
	Count    int      `toml:"count"`
	Delay    Duration `toml:"delay"`
	Jobs     int      `toml:"jobs"`
	Baseline string   `toml:"baseline"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Timer: TimerConfig{
			Backend: driver.KindAuto.String(),
			Signal:  driver.DefaultSignal,
			Reactor: ReactorHeap,
		},
		Interval: IntervalConfig{
			Rearm:  RearmLazy,
			Period: Duration{20 * time.Millisecond},
		},
		Trace: TraceConfig{
			Level:    "off",
			Mode:     "stream",
			Format:   "auto",
			Output:   "stderr",
			RingSize: trace.DefaultRingSize,
		},
		Probe: ProbeConfig{
			Count: 64,
			Delay: Duration{10 * time.Millisecond},
			Jobs:  8,
		},
	}
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over Default and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f, path)
}

// Decode reads TOML from r over Default and validates the result. name
// prefixes error messages.
func Decode(r io.Reader, name string) (Config, error) {
	cfg := Default()
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", name, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", name, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Discover loads the nearest FileName above startDir, or returns Default
// when there is none. The returned path is empty in that case.
func Discover(startDir string) (Config, string, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, path, err
	}
	return cfg, path, nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if _, err := driver.ParseKind(c.Timer.Backend); err != nil {
		return fmt.Errorf("[timer].backend: %w", err)
	}
	if c.Timer.Signal != 0 && (c.Timer.Signal < 34 || c.Timer.Signal > 64) {
		return fmt.Errorf("[timer].signal: %d is not a real-time signal (34..64)", c.Timer.Signal)
	}
	switch c.Timer.Reactor {
	case "", ReactorHeap, ReactorEpoll:
	default:
		return fmt.Errorf("[timer].reactor: unknown reactor %q (expected heap|epoll)", c.Timer.Reactor)
	}
	switch c.Interval.Rearm {
	case "", RearmLazy, RearmEager:
	default:
		return fmt.Errorf("[interval].rearm: unknown mode %q (expected lazy|eager)", c.Interval.Rearm)
	}
	if c.Interval.Period.Duration < 0 {
		return fmt.Errorf("[interval].period: must not be negative")
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return fmt.Errorf("[trace].level: %w", err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		return fmt.Errorf("[trace].mode: %w", err)
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		return fmt.Errorf("[trace].format: %w", err)
	}
	if c.Trace.RingSize < 0 {
		return fmt.Errorf("[trace].ring_size: must not be negative")
	}
	if c.Probe.Count < 0 || c.Probe.Jobs < 0 {
		return fmt.Errorf("[probe]: count and jobs must not be negative")
	}
	return nil
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
