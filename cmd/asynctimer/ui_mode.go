package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// progressMode is the --ui setting of the probe command.
type progressMode string

const (
	progressAuto progressMode = "auto"
	progressOn   progressMode = "on"
	progressOff  progressMode = "off"
)

func parseProgressMode(value string) (progressMode, error) {
	switch m := progressMode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return progressAuto, nil
	case progressAuto, progressOn, progressOff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// showProgress decides whether the probe renders the live progress view.
// In auto mode the view needs a terminal on out and no active tracer, since
// trace lines written while it redraws would tear it.
func (m progressMode) showProgress(out io.Writer, tracing bool) bool {
	switch m {
	case progressOn:
		return true
	case progressOff:
		return false
	}
	f, ok := out.(*os.File)
	return ok && !tracing && isTerminal(f)
}
