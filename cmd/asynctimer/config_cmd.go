package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		if s.cfgPath != "" {
			fmt.Fprintf(out, "# loaded from %s\n", s.cfgPath)
		} else {
			fmt.Fprintln(out, "# no asynctimer.toml found; defaults")
		}
		return s.cfg.Write(out)
	},
}
