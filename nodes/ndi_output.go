// Copyright © 2024 Vortex Studio.

package nodes

import (
	"net"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/bufpool"
	"github.com/vortexstudio/vortex/internal/errcode"
)

const ndiOutputTypeName = "ndi_output"

// ndiRTPPayloadType and ndiRTPClockRate are placeholder wire parameters for
// the raw-frame RTP stand-in (spec 4.K: "standing in for the proprietary
// NDI SDK", per SPEC_FULL.md's DOMAIN STACK pion/rtp entry).
const (
	ndiRTPMTU         = 1400
	ndiRTPPayloadType = 98
	ndiRTPClockRate   = 90000
)

// rawChunkPayloader implements rtp.Payloader by splitting an opaque byte
// buffer into MTU-sized chunks, standing in for a real NDI/raw-video RTP
// payload format.
type rawChunkPayloader struct{}

func (rawChunkPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	var chunks [][]byte
	for len(payload) > 0 {
		n := int(mtu)
		if n > len(payload) {
			n = len(payload)
		}
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}
	return chunks
}

// NDIOutput mirrors WindowOutput's structure, but instead of presenting to a
// window swapchain it renders into an offscreen NV12 target and sends one of
// two staging buffers over RTP each frame (spec 4.K). The rendered frame is
// not copied into the staging buffers, and the send runs synchronously
// inside EvaluateOutput.
type NDIOutput struct {
	portBase
	vortex.PropertyBase

	destAddr string
	width    int
	height   int
	fps      vortex.Rational

	gfx      gpu.Device
	target   gpu.Texture // offscreen render target the sink draws into.
	stage    [2][]byte   // double-buffered staging area.
	stageIdx int
	conn       net.Conn
	packetizer rtp.Packetizer

	basePTS vortex.PTSTick
}

func registerNDIOutput(factory *vortex.NodeFactory) {
	factory.Register(ndiOutputTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeOutput,
		Sinks:   1,
		Sources: 0,
	}, newNDIOutput)
}

func newNDIOutput(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
	n := &NDIOutput{
		portBase: newPortBase(ndiOutputTypeName, vortex.EvalDynamic,
			[]vortex.Sink{{Kind: vortex.SinkRenderTexture}}, nil),
		width:  1920,
		height: 1080,
		fps:    vortex.NewRational(30, 1),
		gfx:    gfx,
	}
	n.BindNotifier(notifier)
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "dest_addr", Index: 0, Kind: vortex.PropString,
		Get: func() vortex.PropertyValue { return vortex.NewStringValue(n.destAddr) },
		Set: func(v vortex.PropertyValue) { n.destAddr = v.Str() },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "width", Index: 1, Kind: vortex.PropInt32,
		Get: func() vortex.PropertyValue { return vortex.NewInt32Value(int32(n.width)) },
		Set: func(v vortex.PropertyValue) { n.width = int(v.Int()) },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "height", Index: 2, Kind: vortex.PropInt32,
		Get: func() vortex.PropertyValue { return vortex.NewInt32Value(int32(n.height)) },
		Set: func(v vortex.PropertyValue) { n.height = int(v.Int()) },
	})
	if props != "" {
		if err := n.Deserialize(props, false); err != nil {
			return nil, errcode.NewConfigError("ndioutput.new", err)
		}
	}

	tex, err := gfx.CreateTexture(gpu.TextureDesc{
		Format: gpu.FormatNV12,
		Width:  n.width,
		Height: n.height,
		Usage:  gpu.UsageRenderTarget,
	})
	if err != nil {
		return nil, errcode.NewFatalError("ndioutput.new", err)
	}
	n.target = tex
	frameSize := n.width * n.height * 3 / 2 // NV12: Y plane + half-resolution interleaved UV.
	n.stage[0] = bufpool.Get(frameSize)
	n.stage[1] = bufpool.Get(frameSize)
	n.packetizer = rtp.NewPacketizer(ndiRTPMTU, ndiRTPPayloadType, 0, rawChunkPayloader{}, rtp.NewRandomSequencer(), ndiRTPClockRate)
	return n, nil
}

func (n *NDIOutput) Update(gfx gpu.Device) {
	if n.conn != nil || n.destAddr == "" {
		return
	}
	conn, err := net.Dial("udp", n.destAddr)
	if err != nil {
		log.Error().Err(err).Str("dest", n.destAddr).Msg("ndi_output: dial failed")
		return
	}
	n.conn = conn
}

func (n *NDIOutput) OutputFPS() vortex.Rational       { return n.fps }
func (n *NDIOutput) OutputSize() (int, int)           { return n.width, n.height }
func (n *NDIOutput) SetBasePTS(pts vortex.PTSTick)    { n.basePTS = pts }
func (n *NDIOutput) BasePTS() vortex.PTSTick          { return n.basePTS }

func (n *NDIOutput) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	return n.EvaluateOutput(probe, probe.CurrentPTS)
}

func (n *NDIOutput) EvaluateOutput(probe *vortex.RenderProbe, pts vortex.PTSTick) (bool, error) {
	sink := n.sinks[0]
	if !sink.Connected() {
		return false, nil
	}
	upstream, ok := probe.Graph.NodeByHandle(sink.SourceNode)
	if !ok {
		return false, nil
	}

	probe.CmdList.ResourceBarrier(n.target, gpu.StatePresent, gpu.StateRenderTarget)
	forward := &vortex.ForwardDescriptor{
		Target:        n.target.RenderTargetView(),
		Width:         n.width,
		Height:        n.height,
		PoolSlotIndex: vortex.SwapchainSlot,
		Depth:         0,
	}
	ok2, err := upstream.Evaluate(probe, forward)
	if err != nil {
		return false, err
	}
	probe.CmdList.ResourceBarrier(n.target, gpu.StateRenderTarget, gpu.StatePresent)
	if !ok2 {
		return false, nil
	}

	n.sendPrevious()
	n.stageIdx ^= 1
	return true, nil
}

// sendPrevious packetizes and sends the staging buffer that stageIdx does
// not select, i.e. the one selected on the previous frame. It writes every
// packet to the connection before returning, so the send is not overlapped
// with the next frame's render.
func (n *NDIOutput) sendPrevious() {
	if n.conn == nil {
		return
	}
	buf := n.stage[n.stageIdx^1]
	packets := n.packetizer.Packetize(buf, uint32(ndiRTPClockRate)/uint32(n.fps.Num)*uint32(n.fps.Den))
	for _, pkt := range packets {
		raw, err := pkt.Marshal()
		if err != nil {
			continue
		}
		if _, err := n.conn.Write(raw); err != nil {
			log.Warn().Err(err).Msg("ndi_output: send failed")
			return
		}
	}
}

func (n *NDIOutput) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *NDIOutput) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *NDIOutput) GetProperties() string { return n.Serialize() }
