// Copyright © 2024 Vortex Studio.

package stream

import (
	"errors"
	"time"

	"github.com/vortexstudio/vortex/codec"
)

// packetReaderLoop implements spec 4.J's packet reader: maintain a local
// snapshot of streams, refreshed only when the registry's generation
// counter changes, and poll each stream's demuxer non-blockingly.
// Grounded on the teacher's eng.Action() fixed/variable timestep loop
// shape (elapsed-time accounting with a capped sleep), generalized here
// from "render loop with spiral-of-death capping" to "poll loop with
// empty-snapshot backoff sleep" (spec 5).
func (m *Manager) packetReaderLoop() {
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
			m.readOneStream(s)
		}
	}
}

func (m *Manager) readOneStream(s *ManagedStream) {
	pkt, ok, err := s.demux.ReadPacket()
	if err != nil {
		if !errors.Is(err, codec.ErrEOF) {
			m.log.Debug().Err(err).Str("stream", s.id.String()).Msg("demux read error")
		}
		m.flushStream(s)
		return
	}
	if !ok {
		return
	}
	m.stats.packetsRead.Add(1)
	if dropped := s.reader.ForcePush(queueItem{pkt: pkt}); dropped {
		m.stats.packetsDropped.Add(1)
		m.log.Warn().Str("stream", s.id.String()).Int("stream_index", pkt.StreamIndex).Msg("dropped packet: reader queue full")
	}
}

// flushStream enqueues a flush sentinel for every channel once the
// demuxer reports end of stream or a read error (spec 4.J "On EOF,
// enqueue flush sentinels into every channel").
func (m *Manager) flushStream(s *ManagedStream) {
	s.reader.ForcePush(queueItem{flush: true})
}
