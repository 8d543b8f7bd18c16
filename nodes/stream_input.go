// Copyright © 2024 Vortex Studio.

package nodes

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/stream"
)

const streamInputTypeName = "stream_input"

// maxBufferedFrames is the pts->frame ordered map cap (spec 4.K: "capped at
// 32 entries; oldest evicted").
const maxBufferedFrames = 32

// yuvSurface is the narrow interface a backend's decoded NV12 surface must
// satisfy for StreamInput to wrap it as an SRV pair without StreamInput
// itself knowing the concrete GPU backend.
type yuvSurface interface {
	ShaderResourceViews() (y, uv gpu.ResourceView)
}

// StreamInput subscribes to a live or file-backed media container through
// the stream manager, buffers its decoded video frames by PTS, and draws
// the one nearest the node's wall-clock-derived target time (spec 4.K).
type StreamInput struct {
	portBase
	vortex.PropertyBase

	streamURL string

	gfx gpu.Device
	mgr *stream.Manager

	id          uuid.UUID
	videoIndex  int
	audioIndex  int
	timeBaseNum int64
	timeBaseDen int64
	openedURL   string
	fence       gpu.Fence

	wall   *vortex.WallClock
	frames []codec.Frame // sorted ascending by PTS, len capped at maxBufferedFrames.
}

func registerStreamInput(factory *vortex.NodeFactory) {
	factory.Register(streamInputTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeInput,
		Sinks:   0,
		Sources: 1,
	}, newStreamInputCtor(nil))
}

// NewStreamInputConstructor builds the node constructor bound to a shared stream
// manager; the engine wires this at factory-registration time since
// StreamInput needs access to the driver's one stream.Manager instance
// rather than constructing its own.
func NewStreamInputConstructor(mgr *stream.Manager) vortex.NodeConstructor {
	return newStreamInputCtor(mgr)
}

func newStreamInputCtor(mgr *stream.Manager) vortex.NodeConstructor {
	return func(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
		n := &StreamInput{
			portBase: newPortBase(streamInputTypeName, vortex.EvalDynamic, nil,
				[]vortex.Source{vortex.Source{Kind: vortex.SinkRenderTexture, Targets: map[vortex.SourceTarget]struct{}{}}}),
			gfx:        gfx,
			mgr:        mgr,
			videoIndex: -1,
			audioIndex: -1,
			wall:       vortex.NewWallClock(),
		}
		n.BindNotifier(notifier)
		n.RegisterField(vortex.PropertyDescriptor{
			Name:  "stream_url",
			Index: 0,
			Kind:  vortex.PropString,
			Get:   func() vortex.PropertyValue { return vortex.NewStringValue(n.streamURL) },
			Set:   func(v vortex.PropertyValue) { n.streamURL = v.Str() },
		})
		if props != "" {
			if err := n.Deserialize(props, false); err != nil {
				return nil, errcode.NewConfigError("streaminput.new", err)
			}
		}
		return n, nil
	}
}

func (n *StreamInput) Update(gfx gpu.Device) {
	if n.mgr == nil {
		return
	}
	if n.streamURL != n.openedURL {
		n.reopen()
	}
	if n.id == (uuid.UUID{}) {
		return
	}
	for {
		f, ok := n.mgr.GetDecodedFrame(n.id, n.videoIndex)
		if !ok {
			break
		}
		n.pushFrame(f)
	}
}

func (n *StreamInput) reopen() {
	if n.id != (uuid.UUID{}) {
		n.mgr.UnregisterStream(n.id)
		n.id = uuid.UUID{}
		n.frames = nil
	}
	n.openedURL = n.streamURL
	if n.streamURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := n.mgr.RegisterStream(ctx, n.streamURL, codec.OpenOptions{LowLatency: true, Timeout: 5 * time.Second}, []int{stream.AllChannels})
	if err != nil {
		log.Error().Err(err).Str("url", n.streamURL).Msg("stream_input: open failed")
		n.streamURL = ""
		n.openedURL = ""
		return
	}
	n.id = id
	if n.fence == nil {
		if f, err := n.gfx.CreateFence(); err == nil {
			n.fence = f
		}
	}

	info, _ := n.mgr.StreamInfo(id)
	n.videoIndex, n.audioIndex = -1, -1
	for _, si := range info {
		switch si.Kind {
		case codec.KindVideo:
			if n.videoIndex == -1 {
				n.videoIndex = si.Index
				n.timeBaseNum, n.timeBaseDen = si.TimeBase[0], si.TimeBase[1]
			}
		case codec.KindAudio:
			if n.audioIndex == -1 {
				n.audioIndex = si.Index
			}
		}
	}
}

func (n *StreamInput) pushFrame(f codec.Frame) {
	i := sort.Search(len(n.frames), func(i int) bool { return n.frames[i].PTS >= f.PTS })
	n.frames = append(n.frames, codec.Frame{})
	copy(n.frames[i+1:], n.frames[i:])
	n.frames[i] = f
	if len(n.frames) > maxBufferedFrames {
		n.frames = n.frames[len(n.frames)-maxBufferedFrames:]
	}
}

// targetPTS converts wall-clock-elapsed time through the stream's own video
// timebase (spec 4.K): pts = elapsedSeconds * timeBaseDen / timeBaseNum.
func (n *StreamInput) targetPTS() int64 {
	if n.timeBaseNum == 0 {
		return 0
	}
	elapsed := n.wall.ElapsedNanos()
	return elapsed * n.timeBaseDen / (n.timeBaseNum * int64(time.Second))
}

func (n *StreamInput) nearestFrame() (codec.Frame, bool) {
	if len(n.frames) == 0 {
		return codec.Frame{}, false
	}
	target := n.targetPTS()
	best := n.frames[0]
	bestDiff := abs64(best.PTS - target)
	for _, f := range n.frames[1:] {
		if d := abs64(f.PTS - target); d < bestDiff {
			best, bestDiff = f, d
		}
	}
	return best, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (n *StreamInput) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	f, ok := n.nearestFrame()
	if !ok {
		return false, nil
	}
	surf, ok := f.Surface.(yuvSurface)
	if !ok {
		return false, nil
	}
	if n.fence != nil {
		if err := n.fence.Wait(f.FenceValue, time.Second); err != nil {
			log.Warn().Err(err).Str("stream", n.id.String()).Msg("stream_input: fence wait timed out")
			return false, nil
		}
	}
	ySRV, uvSRV := surf.ShaderResourceViews()

	table, err := probe.Descriptors.SuballocateTable(2)
	if err != nil {
		return false, err
	}
	table.WriteTexture(0, ySRV)
	table.WriteTexture(1, uvSRV)

	probe.CmdList.BeginRenderPass(forward.Target)
	probe.CmdList.SetViewport(forward.Width, forward.Height)
	probe.CmdList.BindPipeline("nv12_sample")
	table.BindOffset(probe.CmdList, 0)
	probe.CmdList.Draw()
	probe.CmdList.EndRenderPass()
	return true, nil
}

func (n *StreamInput) EvaluateAudio(probe *vortex.RenderProbe) {
	if n.mgr == nil || n.audioIndex == -1 {
		return
	}
	for {
		f, ok := n.mgr.GetDecodedFrame(n.id, n.audioIndex)
		if !ok {
			return
		}
		if samples, ok := f.Surface.([]float32); ok {
			probe.Audio.Samples = append(probe.Audio.Samples, samples...)
		}
	}
}

func (n *StreamInput) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *StreamInput) GetProperties() string { return n.Serialize() }
