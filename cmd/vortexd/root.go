// Copyright © 2024 Vortex Studio.

// vortexd is the compositing engine's process entrypoint: a thin cobra CLI
// wiring the graph, stream manager, driver loop, and UI bridge together
// behind serve/verify/version subcommands, grounded on the pack's own
// cobra root/serve/version command layout.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the vortexd command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vortexd",
		Short: "Vortex",
		Long:  "Real-time compositing and streaming engine driver.",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetOut(os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
