// Package codec names the concrete media codec library as an interface
// boundary only (media demuxer, hardware decoder, sample-rate resampler),
// per the engine's explicit out-of-scope list. Node implementations and
// the stream manager depend only on these interfaces; a real build links
// in a concrete decoder (e.g. an FFmpeg or platform media-foundation
// binding).
package codec

import (
	"context"
	"time"
)

// PacketKind distinguishes the channel kind a packet/frame belongs to.
type PacketKind int

const (
	KindVideo PacketKind = iota
	KindAudio
)

// Packet is one demuxed, still-encoded unit of media for one stream index.
type Packet struct {
	StreamIndex int
	Kind        PacketKind
	PTS         int64
	Data        []byte
}

// Frame is one decoded unit of media, GPU-visible for video (NV12 on
// DirectX 12 backends, platform-native on Vulkan, per spec 4.J) so
// downstream rendering can wrap it as a shader resource with zero copy.
type Frame struct {
	StreamIndex int
	Kind        PacketKind
	PTS         int64
	Surface     any // backend-specific GPU surface handle, opaque here
	FenceValue  uint64
}

// StreamInfo describes one demuxed container's stream table.
type StreamInfo struct {
	Index     int
	Kind      PacketKind
	TimeBase  [2]int64 // numerator, denominator
}

// Demuxer reads packets from an open media container (file or network).
type Demuxer interface {
	Streams() []StreamInfo
	// ReadPacket performs a non-blocking read; implementations return
	// (Packet{}, false, nil) when no packet is currently available rather
	// than blocking, so the packet-reader loop's poll model (spec 4.J)
	// works without a dedicated per-stream goroutine.
	ReadPacket() (Packet, bool, error)
	Close() error
}

// OpenOptions configures Demuxer open, including the low-latency flags
// Stream Input uses (spec 4.K) and the interrupt-callback timeout (spec 5).
type OpenOptions struct {
	LowLatency bool
	Timeout    time.Duration
}

// Open opens a demuxer against the given URL (file path or network
// address), honoring ctx cancellation as the interrupt callback.
type Opener interface {
	Open(ctx context.Context, url string, opts OpenOptions) (Demuxer, error)
}

// ErrAgain and ErrEOF are the two non-fatal decoder outcomes the stream
// manager must special-case (spec 4.J, 4.Error handling).
var (
	ErrAgain = errAgain{}
	ErrEOF   = errEOF{}
)

type errAgain struct{}

func (errAgain) Error() string { return "codec: resource temporarily unavailable" }

type errEOF struct{}

func (errEOF) Error() string { return "codec: end of stream" }

// DecoderConfig configures channel-level decoder construction (spec 4.J):
// single-threaded, frame-level, error-concealment enabled, with the given
// async depth and extra hardware frame allowance for video.
type DecoderConfig struct {
	Kind          PacketKind
	AsyncDepth    int
	ExtraHWFrames int
}

// Decoder wraps one channel's hardware-bound decode context.
type Decoder interface {
	// SendPacket submits an encoded packet; returns ErrAgain if the
	// decoder's internal queue is full, ErrEOF on flush.
	SendPacket(p Packet) error
	// ReceiveFrame retrieves one decoded frame if ready; returns ErrAgain
	// if none is ready yet, ErrEOF once the decoder is fully flushed.
	ReceiveFrame() (Frame, error)
}

// Device creates channel decoders bound to a shared hardware context,
// constructed once at stream-manager construction and shared immutably
// across all decoders (spec 5).
type Device interface {
	NewDecoder(cfg DecoderConfig) (Decoder, error)
}
