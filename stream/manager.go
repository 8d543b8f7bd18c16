// Copyright © 2024 Vortex Studio.

// Package stream implements the two-thread stream ingestion pipeline of
// spec 4.J: a packet-reader thread draining demuxers into per-stream SPSC
// queues, and an I/O-processor thread routing packets into per-channel
// hardware decoders with back-pressure handling. Grounded on the
// snapshot-under-read-lock-then-release broadcast pattern in
// alxayo-rtmp-go's internal/rtmp/media.relay.go, generalized from
// "broadcast a message to subscribers" to "snapshot the registry for one
// poll-loop pass".
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/metrics"
	"github.com/vortexstudio/vortex/ring"
)

// AllChannels is the sentinel passed to RegisterStream to activate every
// discovered stream index rather than an explicit subset (spec 4.J).
const AllChannels = -1

// readQueueDepth is the packet-reader-to-processor SPSC queue depth per
// stream (spec 4.J: "a bounded SPSC packet queue (depth 64)").
const readQueueDepth = 64

const snapshotIdleSleep = 10 * time.Millisecond

type queueItem struct {
	pkt   codec.Packet
	flush bool
}

type channelUpdate struct {
	index    int
	activate bool
}

// ManagedStream is one registered stream's full runtime state (spec 4.J).
type ManagedStream struct {
	id     uuid.UUID
	url    string
	demux  codec.Demuxer
	info   []codec.StreamInfo
	reader *ring.SPSCQueue[queueItem]
	device codec.Device // shared hardware decode device, for late channel activation.
	log    zerolog.Logger

	mu            sync.Mutex
	channels      map[int]*ChannelStorage
	pending       []channelUpdate
	updatePending atomic.Bool

	closed atomic.Bool
}

// Stats reports cumulative counters for one manager instance, summed over
// all its streams (spec 4.J.1 expansion).
type Stats struct {
	PacketsRead    uint64
	FramesDecoded  uint64
	DecoderEAgain  uint64
	PacketsDropped uint64
}

// Manager owns the stream registry and the packet-reader/I-O-processor
// threads (spec 4.J, 4.5 concurrency model).
type Manager struct {
	gfx    codec.Device
	opener codec.Opener
	log    zerolog.Logger

	mu         sync.RWMutex
	streams    map[uuid.UUID]*ManagedStream
	generation atomic.Uint64

	stats struct {
		packetsRead    atomic.Uint64
		framesDecoded  atomic.Uint64
		decoderEAgain  atomic.Uint64
		packetsDropped atomic.Uint64
	}

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager constructs a manager bound to a process-wide hardware decode
// device and demuxer opener (spec 4.J: "Hardware decode context is a
// process-wide resource constructed from the GPU device at stream-manager
// construction").
func NewManager(gfx codec.Device, opener codec.Opener, log zerolog.Logger) *Manager {
	return &Manager{
		gfx:     gfx,
		opener:  opener,
		log:     log.With().Str("component", "stream").Logger(),
		streams: make(map[uuid.UUID]*ManagedStream),
	}
}

// Start launches the packet-reader and I/O-processor threads.
func (m *Manager) Start() {
	m.stop = make(chan struct{})
	m.wg.Add(2)
	go func() { defer m.wg.Done(); m.packetReaderLoop() }()
	go func() { defer m.wg.Done(); m.ioProcessorLoop() }()
}

// Stop signals both threads to exit after their current short-sleep
// window and waits for them to finish (spec 5 "worker threads watch a
// stop token").
func (m *Manager) Stop() {
	if m.stop != nil {
		close(m.stop)
	}
	m.wg.Wait()
}

// Stats returns a snapshot of cumulative counters.
func (m *Manager) Stats() Stats {
	return Stats{
		PacketsRead:    m.stats.packetsRead.Load(),
		FramesDecoded:  m.stats.framesDecoded.Load(),
		DecoderEAgain:  m.stats.decoderEAgain.Load(),
		PacketsDropped: m.stats.packetsDropped.Load(),
	}
}

// RegisterStream opens url through the configured opener, allocates a
// ManagedStream, initializes decoders for each of activeChannels (or
// every discovered stream if the caller passes AllChannels), and inserts
// it into the registry under a fresh uuid token (spec 4.J "Subscription
// API", with the pointer-as-integer handle replaced by a uuid per
// the expanded data model).
func (m *Manager) RegisterStream(ctx context.Context, url string, opts codec.OpenOptions, activeChannels []int) (uuid.UUID, error) {
	demux, err := m.opener.Open(ctx, url, opts)
	if err != nil {
		return uuid.UUID{}, errcode.NewResourceError("stream.registerstream", err)
	}
	info := demux.Streams()

	wantAll := len(activeChannels) == 1 && activeChannels[0] == AllChannels
	want := make(map[int]bool, len(activeChannels))
	for _, idx := range activeChannels {
		want[idx] = true
	}

	ms := &ManagedStream{
		id:       uuid.New(),
		url:      url,
		demux:    demux,
		info:     info,
		reader:   ring.NewSPSCQueue[queueItem](readQueueDepth),
		device:   m.gfx,
		log:      m.log,
		channels: make(map[int]*ChannelStorage),
	}

	for _, si := range info {
		if !wantAll && !want[si.Index] {
			continue
		}
		dec, err := m.gfx.NewDecoder(codec.DecoderConfig{
			Kind:          si.Kind,
			AsyncDepth:    8,
			ExtraHWFrames: 16,
		})
		if err != nil {
			demux.Close()
			return uuid.UUID{}, errcode.NewResourceError("stream.registerstream", err)
		}
		ms.channels[si.Index] = newChannelStorage(dec, ms.id.String(), si.Index)
	}

	m.mu.Lock()
	m.streams[ms.id] = ms
	m.mu.Unlock()
	m.generation.Add(1)
	metrics.StreamsActive.Inc()

	m.log.Info().Str("stream", ms.id.String()).Str("url", url).Int("channels", len(ms.channels)).Msg("stream registered")
	return ms.id, nil
}

// UnregisterStream removes id from the registry and closes its demuxer.
func (m *Manager) UnregisterStream(id uuid.UUID) {
	m.mu.Lock()
	ms, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ms.closed.Store(true)
	ms.demux.Close()
	m.generation.Add(1)
	metrics.StreamsActive.Dec()
}

func (m *Manager) queueUpdate(id uuid.UUID, index int, activate bool) error {
	m.mu.RLock()
	ms, ok := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return errcode.NewConfigError("stream.setchannelactive", nil)
	}
	ms.mu.Lock()
	ms.pending = append(ms.pending, channelUpdate{index: index, activate: activate})
	ms.mu.Unlock()
	ms.updatePending.Store(true)
	return nil
}

// SetChannelActive defers activating or deactivating one channel of
// stream id to the processor thread's next iteration.
func (m *Manager) SetChannelActive(id uuid.UUID, index int, active bool) error {
	return m.queueUpdate(id, index, active)
}

// ActivateChannels defers activating every named channel.
func (m *Manager) ActivateChannels(id uuid.UUID, indices ...int) error {
	for _, idx := range indices {
		if err := m.queueUpdate(id, idx, true); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateChannels defers deactivating every named channel.
func (m *Manager) DeactivateChannels(id uuid.UUID, indices ...int) error {
	for _, idx := range indices {
		if err := m.queueUpdate(id, idx, false); err != nil {
			return err
		}
	}
	return nil
}

// GetDecodedFrame returns the next decoded frame ready on the named
// stream/channel, if any.
func (m *Manager) GetDecodedFrame(id uuid.UUID, channelIndex int) (codec.Frame, bool) {
	m.mu.RLock()
	ms, ok := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return codec.Frame{}, false
	}
	ms.mu.Lock()
	ch, ok := ms.channels[channelIndex]
	ms.mu.Unlock()
	if !ok {
		return codec.Frame{}, false
	}
	return ch.GetDecodedFrame()
}

// StreamInfo returns the demuxed container's stream table for id.
func (m *Manager) StreamInfo(id uuid.UUID) ([]codec.StreamInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.streams[id]
	if !ok {
		return nil, false
	}
	return ms.info, true
}

// snapshotStreams takes the registry's read lock, copies the current
// stream slice, and releases the lock before the caller iterates it — the
// teacher's broadcast-under-read-lock-then-release pattern, generalized
// from "deliver to subscribers" to "hand the poll loop a stable list".
func (m *Manager) snapshotStreams() []*ManagedStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ManagedStream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}
