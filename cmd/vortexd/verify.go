// Copyright © 2024 Vortex Studio.

package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/nodes"
	"github.com/vortexstudio/vortex/stream"
)

// newVerifyCmd builds a smoke-check command: it registers every node type
// and runs Engine.Verify over an empty graph without requiring a concrete
// GPU, codec, or window backend, catching a malformed property table or a
// registration mistake before a platform build is available to actually
// serve. Mirrors the teacher's standalone Verify() step, run here ahead of
// Action rather than folded into serve's startup path.
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check node registration and property wiring without a GPU backend.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			factory := vortex.NewNodeFactory()
			nodes.Register(factory)
			factory.Register("stream_input", mustInfo(factory, "stream_input"), nodes.NewStreamInputConstructor((*stream.Manager)(nil)))

			clock := vortex.NewPTSClock(vortex.NewWallClock())
			graph := vortex.NewGraph(factory, nil, clock, zerolog.Nop())

			engine := vortex.NewEngine(graph, nil, stream.NewManager(nil, nil, zerolog.Nop()), zerolog.Nop())
			if err := engine.Verify(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok:", len(factory.TypeNames()), "node types registered")
			return nil
		},
	}
}
