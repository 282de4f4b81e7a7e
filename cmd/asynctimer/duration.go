package main

import (
	"strconv"
	"time"
)

// parseDuration accepts Go duration strings and bare integers as
// milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
