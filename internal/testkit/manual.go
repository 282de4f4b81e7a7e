// Package testkit holds test doubles for timer drivers and wakers.
package testkit

import (
	"fmt"
	"sync"
	"time"

	"asynctimer/driver"
	"asynctimer/wake"
)

// ArmRecord is one call that scheduled the manual driver.
type ArmRecord struct {
	D        time.Duration
	Periodic bool
	Gen      wake.Gen
}

// ManualDriver is a driver.Driver with no OS timer. Tests decide when it
// fires by calling Trip, which may happen from any goroutine.
type ManualDriver struct {
	state *wake.State

	mu       sync.Mutex
	status   driver.Status
	periodic bool
	arms     []ArmRecord
	closes   int
}

// NewManual returns an idle manual driver.
func NewManual() *ManualDriver {
	return &ManualDriver{state: wake.New()}
}

// Factory returns a constructor that hands out m, for
// asynctimer.WithDriverFactory.
func (m *ManualDriver) Factory() func() (driver.Driver, error) {
	return func() (driver.Driver, error) { return m, nil }
}

func (m *ManualDriver) Kind() driver.Kind { return driver.KindNone }

func (m *ManualDriver) State() *wake.State { return m.state }

func (m *ManualDriver) IsExpired() bool { return m.state.IsFired() }

func (m *ManualDriver) Status() driver.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == driver.StatusArmed && m.state.IsFired() {
		return driver.StatusFired
	}
	return m.status
}

func (m *ManualDriver) Arm(d time.Duration) error { return m.arm(d, false) }

func (m *ManualDriver) ArmPeriodic(period time.Duration) error { return m.arm(period, true) }

func (m *ManualDriver) Rearm(d time.Duration) error {
	m.mu.Lock()
	periodic := m.periodic
	m.mu.Unlock()
	return m.arm(d, periodic)
}

func (m *ManualDriver) arm(d time.Duration, periodic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == driver.StatusClosed {
		return driver.ErrClosed
	}
	if d <= 0 {
		return fmt.Errorf("%w: %v", driver.ErrInvalidDuration, d)
	}
	gen := m.state.Reset()
	m.status = driver.StatusArmed
	m.periodic = periodic
	m.arms = append(m.arms, ArmRecord{D: d, Periodic: periodic, Gen: gen})
	return nil
}

func (m *ManualDriver) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != driver.StatusArmed {
		return
	}
	m.state.Cancel()
	m.status = driver.StatusCancelled
	m.periodic = false
}

func (m *ManualDriver) Close() error {
	m.Cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != driver.StatusClosed {
		m.status = driver.StatusClosed
		m.closes++
	}
	return nil
}

// Trip fires the current arm cycle. It reports false when the driver is not
// armed or the cycle already fired.
func (m *ManualDriver) Trip() bool {
	m.mu.Lock()
	armed := m.status == driver.StatusArmed
	gen := m.state.Generation()
	m.mu.Unlock()
	if !armed {
		return false
	}
	return m.state.Fire(gen)
}

// TripStale fires gen regardless of the current cycle, like a late OS
// callback.
func (m *ManualDriver) TripStale(gen wake.Gen) bool {
	return m.state.Fire(gen)
}

// Arms returns a copy of every recorded arm.
func (m *ManualDriver) Arms() []ArmRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ArmRecord(nil), m.arms...)
}

// Closed reports whether Close has been called.
func (m *ManualDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes > 0
}
