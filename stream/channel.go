// Copyright © 2024 Vortex Studio.

package stream

import (
	"errors"
	"strconv"

	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/metrics"
	"github.com/vortexstudio/vortex/ring"
)

// framesDepth is the decoded-frame SPSC queue capacity per channel (spec
// 4.J ChannelStorage._frames).
const framesDepth = 16

// ChannelStorage holds one (stream, stream-index) channel's decode state:
// the bound hardware decoder, an unbounded back-pressure packet FIFO, and
// a bounded queue of decoded frames (spec 4.J). streamLabel/channelLabel
// carry nothing but metric label values — ChannelStorage has no other use
// for the stream's identity.
type ChannelStorage struct {
	decoder codec.Decoder
	packets []codec.Packet
	frames  *ring.SPSCQueue[codec.Frame]

	streamLabel  string
	channelLabel string
}

func newChannelStorage(decoder codec.Decoder, streamID string, channelIndex int) *ChannelStorage {
	return &ChannelStorage{
		decoder:      decoder,
		frames:       ring.NewSPSCQueue[codec.Frame](framesDepth),
		streamLabel:  streamID,
		channelLabel: strconv.Itoa(channelIndex),
	}
}

// SendPacket implements spec 4.J ChannelStorage.SendPacket: try send; on
// EAGAIN enqueue for retry; on EOF clear the back-pressure queue.
func (c *ChannelStorage) SendPacket(p codec.Packet) bool {
	err := c.decoder.SendPacket(p)
	switch {
	case err == nil:
		return true
	case errors.Is(err, codec.ErrAgain):
		c.packets = append(c.packets, p)
		return false
	case errors.Is(err, codec.ErrEOF):
		c.packets = c.packets[:0]
		return false
	default:
		return false
	}
}

// SendQueuedPackets implements spec 4.J ChannelStorage.SendQueuedPackets:
// retry the back-pressure queue's front packet, decoding frames to make
// room when the decoder is still busy. Returns true if any packet was
// consumed or any frame was decoded this call (i.e. the caller made
// progress and should keep iterating its own work loop).
func (c *ChannelStorage) SendQueuedPackets() bool {
	progressed := false
	for len(c.packets) > 0 {
		p := c.packets[0]
		err := c.decoder.SendPacket(p)
		switch {
		case err == nil:
			c.packets = c.packets[1:]
			progressed = true
			continue
		case errors.Is(err, codec.ErrAgain):
			if c.frames.Len() >= c.frames.Cap() {
				return progressed
			}
			for c.TryDecodeFrame() {
				progressed = true
			}
			// One more attempt now that frames have drained; if the
			// decoder is still busy, leave the packet queued and come
			// back on the next processor iteration.
			if err := c.decoder.SendPacket(p); err == nil {
				c.packets = c.packets[1:]
				progressed = true
				continue
			}
			return progressed
		case errors.Is(err, codec.ErrEOF):
			c.packets = c.packets[:0]
			return progressed
		default:
			// Malformed or rejected packet: drop and keep going.
			c.packets = c.packets[1:]
			progressed = true
		}
	}
	return progressed
}

// TryDecodeFrame implements spec 4.J ChannelStorage.TryDecodeFrame.
func (c *ChannelStorage) TryDecodeFrame() bool {
	if c.frames.Len() >= c.frames.Cap() {
		return false
	}
	f, err := c.decoder.ReceiveFrame()
	switch {
	case err == nil:
		c.frames.TryPush(f)
		metrics.DecodedFramesTotal.WithLabelValues(c.streamLabel, c.channelLabel).Inc()
		metrics.ChannelQueueDepth.WithLabelValues(c.streamLabel, c.channelLabel).Set(float64(c.frames.Len()))
		return true
	case errors.Is(err, codec.ErrEOF):
		c.packets = c.packets[:0]
		return false
	default:
		return false
	}
}

// GetDecodedFrame implements spec 4.J ChannelStorage.GetDecodedFrame.
func (c *ChannelStorage) GetDecodedFrame() (codec.Frame, bool) {
	f, ok := c.frames.TryPop()
	if ok {
		metrics.ChannelQueueDepth.WithLabelValues(c.streamLabel, c.channelLabel).Set(float64(c.frames.Len()))
	}
	return f, ok
}

// flush drops all back-pressured packets, mirroring EOF handling, when a
// flush sentinel propagates from the packet reader.
func (c *ChannelStorage) flush() {
	c.packets = c.packets[:0]
}
