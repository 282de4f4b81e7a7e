package main

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"asynctimer/driver"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List timer backends and whether this build supports them",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		selected, err := s.backendKind()
		if err != nil {
			return err
		}
		yes := color.New(color.FgGreen).Sprint("yes")
		no := color.New(color.FgRed).Sprint("no")
		mark := color.New(color.FgCyan, color.Bold)

		t := &table{header: []string{"BACKEND", "SUPPORTED", "NOTE"}}
		for _, name := range driver.AllKindNames() {
			kind, _ := driver.ParseKind(name)
			if kind == driver.KindAuto {
				continue
			}
			supported := no
			if driver.Supported(kind) {
				supported = yes
			}
			var note string
			switch {
			case kind == selected && kind == driver.Platform():
				note = mark.Sprint("platform default, selected")
			case kind == driver.Platform():
				note = "platform default"
			case kind == selected:
				note = mark.Sprint("selected")
			}
			t.add(name, supported, note)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", runtime.GOOS, runtime.GOARCH)
		return t.render(cmd.OutOrStdout())
	},
}
