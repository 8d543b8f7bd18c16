// Copyright © 2024 Vortex Studio.

// Package metrics declares the prometheus collectors exported by the
// engine: decoder backpressure, texture pool occupancy, per-channel queue
// depth, dropped frames, and output scheduler timing (SPEC_FULL.md's
// ambient-stack observability section). Grounded directly on the pack's
// package-level-vars-plus-Register(reg) shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DecodedFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "decoded_frames_total",
		Help:      "Total frames produced by the decoder per stream and channel index.",
	}, []string{"stream", "channel"})

	DroppedFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "dropped_frames_total",
		Help:      "Total frames dropped by channel backpressure, a full ring buffer, or the output scheduler.",
	}, []string{"stream", "channel", "reason"})

	DecoderEAgainTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "decoder_eagain_total",
		Help:      "Total ErrAgain responses from ReceiveFrame, indicating decoder backpressure.",
	}, []string{"stream"})

	ChannelQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "channel_queue_depth",
		Help:      "Current queued-packet depth of a stream channel's ring buffer.",
	}, []string{"stream", "channel"})

	TexturePoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "texture_pool_in_use",
		Help:      "Number of texture pool entries currently leased out.",
	})

	TexturePoolCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "texture_pool_capacity",
		Help:      "Total number of texture pool entries allocated across all frame slots.",
	})

	DescriptorTableExhaustionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "descriptor_table_exhaustions_total",
		Help:      "Total times a descriptor suballocation failed due to range exhaustion.",
	})

	SchedulerTickLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vortex",
		Name:      "scheduler_tick_latency_seconds",
		Help:      "Latency between an output's scheduled PTS and its actual evaluation.",
		Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1},
	}, []string{"output"})

	GraphTraverseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vortex",
		Name:      "graph_traverse_duration_seconds",
		Help:      "Duration of one full Graph.Traverse call.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	NodesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "nodes_active",
		Help:      "Current number of live nodes in the graph.",
	})

	StreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "streams_active",
		Help:      "Current number of registered streams in the stream manager.",
	})

	ImageReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "image_reloads_total",
		Help:      "Total image_input texture reloads by outcome.",
	}, []string{"outcome"})
)

// Register adds every collector declared in this package to reg. Called
// once at engine startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		DecodedFramesTotal,
		DroppedFramesTotal,
		DecoderEAgainTotal,
		ChannelQueueDepth,
		TexturePoolInUse,
		TexturePoolCapacity,
		DescriptorTableExhaustionsTotal,
		SchedulerTickLatency,
		GraphTraverseDuration,
		NodesActive,
		StreamsActive,
		ImageReloadsTotal,
	)
}
