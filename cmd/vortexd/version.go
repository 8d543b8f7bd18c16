// Copyright © 2024 Vortex Studio.

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version reads the binary's embedded VCS revision, falling back to
// "<unknown>" for a build without module/VCS info (e.g. `go run`).
func Version() string {
	version := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	for _, kv := range info.Settings {
		if kv.Key == "vcs.revision" && kv.Value != "" {
			version = kv.Value
		}
	}
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version())
		},
	}
}
