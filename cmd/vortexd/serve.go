// Copyright © 2024 Vortex Studio.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/internal/scheme"
	"github.com/vortexstudio/vortex/metrics"
	"github.com/vortexstudio/vortex/nodes"
	"github.com/vortexstudio/vortex/protocol"
	"github.com/vortexstudio/vortex/stream"
)

// serveOpts collects serve's flags. Mirrors the pack's habit of a small
// explicit options struct read once at startup rather than threading
// viper/env lookups through the construction path.
type serveOpts struct {
	httpAddr   string
	assetDir   string
	bundlePath string
	tickRate   time.Duration
}

func newServeCmd() *cobra.Command {
	opts := &serveOpts{}

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the compositing engine and its UI control plane.",
		Long:    "Builds the node graph, starts the stream manager and driver loop, and serves the UI bridge and metrics over HTTP.",
		Example: "vortexd serve --http :8088 --assets ./ui/dist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.httpAddr, "http", ":8088", "HTTP listen address for the UI bridge and /metrics")
	flags.StringVar(&opts.assetDir, "assets", "./ui/dist", "directory serving the embedded UI's static assets")
	flags.StringVar(&opts.bundlePath, "bundle", "", "optional packaged assets.zip to prefer over --assets")
	flags.DurationVar(&opts.tickRate, "tick-rate", time.Millisecond, "driver loop poll cadence")

	return cmd
}

func serve(ctx context.Context, opts *serveOpts) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	logger := log.Logger

	if GPUBackend == nil {
		return errNoGPUBackend
	}
	gfx, err := GPUBackend()
	if err != nil {
		return err
	}

	var codecDevice codec.Device
	var codecOpener codec.Opener
	if CodecBackend != nil {
		codecDevice, codecOpener, err = CodecBackend()
		if err != nil {
			return err
		}
	}

	metrics.Register(prometheus.DefaultRegisterer)

	factory := vortex.NewNodeFactory()
	nodes.Register(factory)

	mgr := stream.NewManager(codecDevice, codecOpener, logger)
	factory.Register("stream_input", mustInfo(factory, "stream_input"), nodes.NewStreamInputConstructor(mgr))

	if WindowBackend != nil {
		opener, err := WindowBackend()
		if err != nil {
			return err
		}
		factory.Register("window_output", mustInfo(factory, "window_output"), nodes.NewWindowOutputConstructor(opener))
	}

	clock := vortex.NewPTSClock(vortex.NewWallClock())
	graph := vortex.NewGraph(factory, gfx, clock, logger)

	engine := vortex.NewEngine(graph, gfx, mgr, logger, vortex.WithTickRate(opts.tickRate))
	if err := engine.Verify(); err != nil {
		return err
	}

	bridge := protocol.NewBridge(graph)

	resolver := scheme.NewHandler(opts.assetDir, opts.bundlePath)
	defer resolver.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", protocol.NewSchemeHandler(resolver))
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		transport, err := protocol.NewWebsocketTransport(bridge, w, r)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		transport.Serve()
	})

	httpServer := &http.Server{
		Addr:              opts.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start()
	defer engine.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	actionCtx, cancelAction := context.WithCancel(rootCtx)
	defer cancelAction()
	actionErrCh := make(chan error, 1)
	go func() { actionErrCh <- engine.Action(actionCtx) }()

	logger.Info().Str("addr", opts.httpAddr).Msg("vortexd serving")

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
			return err
		}
	case err := <-actionErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("driver loop error")
			return err
		}
	}

	cancelAction()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// mustInfo looks up a base-registered node type's descriptor so an override
// registration (stream_input, window_output bound to their real
// dependencies) keeps the same Kind/Sinks/Sources the factory already
// published.
func mustInfo(factory *vortex.NodeFactory, name string) vortex.NodeTypeInfo {
	info, ok := factory.Info(name)
	if !ok {
		return vortex.NodeTypeInfo{}
	}
	return info
}
