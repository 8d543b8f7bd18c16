// Copyright © 2024 Vortex Studio.

package stream

import (
	"strconv"
	"time"

	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/metrics"
)

// ioProcessorLoop implements spec 4.J's I/O processor: snapshot-poll
// every registered stream, draining its pending channel-activation
// updates and routing queued packets to the right channel's decoder.
func (m *Manager) ioProcessorLoop() {
	var snapshot []*ManagedStream
	var snapGen uint64

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		if gen := m.generation.Load(); gen != snapGen {
			snapshot = m.snapshotStreams()
			snapGen = gen
		}

		if len(snapshot) == 0 {
			time.Sleep(snapshotIdleSleep)
			continue
		}

		for _, s := range snapshot {
			if s.closed.Load() {
				continue
			}
			m.processStream(s)
		}
	}
}

// processStream implements spec 4.J's per-stream processor body: drain
// pending updates, then repeat flushing queued packets through every
// channel and routing one freshly-read packet by stream index until the
// stream's read queue is empty.
func (m *Manager) processStream(s *ManagedStream) {
	s.drainPendingUpdates()

	for {
		progressed := false

		s.mu.Lock()
		for _, ch := range s.channels {
			if ch.SendQueuedPackets() {
				progressed = true
			}
		}
		s.mu.Unlock()

		item, ok := s.reader.TryPop()
		if !ok {
			break
		}
		progressed = true

		if item.flush {
			s.mu.Lock()
			for _, ch := range s.channels {
				ch.flush()
			}
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		ch, subscribed := s.channels[item.pkt.StreamIndex]
		s.mu.Unlock()
		channel := strconv.Itoa(item.pkt.StreamIndex)
		if !subscribed {
			m.stats.packetsDropped.Add(1)
			metrics.DroppedFramesTotal.WithLabelValues(s.id.String(), channel, "unsubscribed_channel").Inc()
			continue
		}
		if !ch.SendPacket(item.pkt) {
			m.stats.decoderEAgain.Add(1)
			metrics.DecoderEAgainTotal.WithLabelValues(s.id.String()).Inc()
		}

		if !progressed {
			break
		}
	}
}

// drainPendingUpdates applies queued channel activations/deactivations
// (spec 4.J "Drain its pending-updates list, calling InitDecoder(ch) for
// activations and erasing the channel entry for deactivations").
func (s *ManagedStream) drainPendingUpdates() {
	if !s.updatePending.Load() {
		return
	}
	s.mu.Lock()
	updates := s.pending
	s.pending = nil
	s.updatePending.Store(false)
	s.mu.Unlock()

	for _, u := range updates {
		if u.activate {
			s.activateChannelLocked(u.index)
		} else {
			s.mu.Lock()
			delete(s.channels, u.index)
			s.mu.Unlock()
		}
	}
}

func (s *ManagedStream) activateChannelLocked(index int) {
	s.mu.Lock()
	_, exists := s.channels[index]
	s.mu.Unlock()
	if exists {
		return
	}
	for _, si := range s.info {
		if si.Index != index {
			continue
		}
		dec, err := s.device.NewDecoder(codec.DecoderConfig{
			Kind:          si.Kind,
			AsyncDepth:    8,
			ExtraHWFrames: 16,
		})
		if err != nil {
			s.log.Error().Err(err).Str("stream", s.id.String()).Int("channel", index).Msg("activate channel: decoder init failed")
			return
		}
		s.mu.Lock()
		s.channels[index] = newChannelStorage(dec, s.id.String(), index)
		s.mu.Unlock()
		return
	}
}
