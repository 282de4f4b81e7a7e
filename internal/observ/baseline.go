package observ

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Baseline format changes
const baselineSchemaVersion uint16 = 1

// ErrSchema is returned when a baseline was written by an incompatible
// version.
var ErrSchema = errors.New("baseline schema mismatch")

// Baseline is a saved probe run.
type Baseline struct {
	Schema  uint16        `msgpack:"schema"`
	Created time.Time     `msgpack:"created"`
	Host    string        `msgpack:"host"`
	Reports []Report      `msgpack:"reports"`
	Phases  []PhaseReport `msgpack:"phases"`
}

// NewBaseline stamps reports with the current schema and time.
func NewBaseline(reports []Report, phases []PhaseReport) *Baseline {
	host, _ := os.Hostname()
	return &Baseline{
		Schema:  baselineSchemaVersion,
		Created: time.Now().UTC(),
		Host:    host,
		Reports: reports,
		Phases:  phases,
	}
}

// Save writes b to path atomically.
func Save(path string, b *Baseline) (err error) {
	if b == nil {
		return fmt.Errorf("nil baseline")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "baseline-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()
	if err = msgpack.NewEncoder(f).Encode(b); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Load reads a baseline written by Save.
func Load(path string) (*Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var b Baseline
	if err := msgpack.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("%s: decode baseline: %w", path, err)
	}
	if b.Schema != baselineSchemaVersion {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", path, ErrSchema, b.Schema, baselineSchemaVersion)
	}
	return &b, nil
}

// Delta compares one backend between a baseline and a new run.
type Delta struct {
	Backend   string
	P50MS     float64
	P99MS     float64
	Regressed bool
}

// Compare matches reports by backend. A backend regresses when its p99 slack
// grew by more than tolerance milliseconds. Backends missing from either side
// are skipped.
func Compare(base, cur []Report, tolerance float64) []Delta {
	byBackend := make(map[string]Report, len(base))
	for _, r := range base {
		byBackend[r.Backend] = r
	}
	var out []Delta
	for _, r := range cur {
		old, ok := byBackend[r.Backend]
		if !ok {
			continue
		}
		d := Delta{
			Backend: r.Backend,
			P50MS:   r.P50MS - old.P50MS,
			P99MS:   r.P99MS - old.P99MS,
		}
		d.Regressed = d.P99MS > tolerance
		out = append(out, d)
	}
	return out
}
