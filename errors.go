package asynctimer

import (
	"errors"

	"asynctimer/driver"
)

var (
	// ErrUnsupported is returned when the selected timer backend is not
	// available on this platform.
	ErrUnsupported = driver.ErrUnsupported
	// ErrInvalidDuration is returned for non-positive or unrepresentable
	// durations.
	ErrInvalidDuration = driver.ErrInvalidDuration
	// ErrClosed is returned by a combinator whose timer was released.
	ErrClosed = driver.ErrClosed
	// ErrConsumed is returned when an Expired is restarted or unwrapped a
	// second time.
	ErrConsumed = errors.New("expired future already consumed")
)
