// Copyright © 2024 Vortex Studio.

package nodes

import (
	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/window"
)

const windowOutputTypeName = "window_output"

// maxSwapchainImages bounds the per-frame-in-flight command list and fence
// value arrays WindowOutput cycles through (spec 4.K).
const maxSwapchainImages = 2

// WindowOutput owns a platform window and its swapchain, presenting the
// graph's rendered content once per scheduled tick (spec 4.K). Close() on
// the backend's gpu.CommandList stands in for "close and submit" since the
// GPU interface boundary this module targets has no separate submission
// call (gpu package doc comment: out of scope, no concrete implementation).
type WindowOutput struct {
	portBase
	vortex.PropertyBase

	title  string
	width  int
	height int
	fps    vortex.Rational

	gfx    gpu.Device
	opener window.Opener
	win    window.Window

	cmdLists [maxSwapchainImages]gpu.CommandList
	fence    gpu.Fence
	signaled [maxSwapchainImages]uint64
	slot     int

	basePTS vortex.PTSTick
}

func registerWindowOutput(factory *vortex.NodeFactory) {
	factory.Register(windowOutputTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeOutput,
		Sinks:   1,
		Sources: 0,
	}, newWindowOutputCtor(nil))
}

// NewWindowOutputConstructor binds a window opener (an explicit resource
// the host constructs once, per the Design Notes item on global
// singletons) for use by the UI protocol's CreateNodeAsync handler.
func NewWindowOutputConstructor(opener window.Opener) vortex.NodeConstructor {
	return newWindowOutputCtor(opener)
}

func newWindowOutputCtor(opener window.Opener) vortex.NodeConstructor {
	return func(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
		n := &WindowOutput{
			portBase: newPortBase(windowOutputTypeName, vortex.EvalDynamic,
				[]vortex.Sink{{Kind: vortex.SinkRenderTexture}}, nil),
			title:  "vortex",
			width:  1280,
			height: 720,
			fps:    vortex.NewRational(60, 1),
			gfx:    gfx,
			opener: opener,
		}
		n.BindNotifier(notifier)
		n.RegisterField(vortex.PropertyDescriptor{
			Name: "title", Index: 0, Kind: vortex.PropString,
			Get: func() vortex.PropertyValue { return vortex.NewStringValue(n.title) },
			Set: func(v vortex.PropertyValue) { n.title = v.Str() },
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
				return nil, errcode.NewConfigError("windowoutput.new", err)
			}
		}
		if opener != nil {
			if err := n.open(); err != nil {
				return nil, err
			}
		}
		return n, nil
	}
}

func (n *WindowOutput) open() error {
	win, err := n.opener.Open(n.title, n.width, n.height)
	if err != nil {
		return errcode.NewResourceError("windowoutput.open", err)
	}
	n.win = win
	n.fence, err = n.gfx.CreateFence()
	if err != nil {
		return errcode.NewFatalError("windowoutput.open", err)
	}
	for i := range n.cmdLists {
		cl, err := n.gfx.CreateCommandList()
		if err != nil {
			return errcode.NewFatalError("windowoutput.open", err)
		}
		n.cmdLists[i] = cl
	}
	return nil
}

func (n *WindowOutput) Update(gfx gpu.Device) {
	if n.win != nil && !n.win.Alive() {
		log.Info().Msg("window_output: window closed")
	}
}

func (n *WindowOutput) OutputFPS() vortex.Rational { return n.fps }

func (n *WindowOutput) OutputSize() (int, int) {
	if n.win != nil {
		return n.win.Size()
	}
	return n.width, n.height
}

func (n *WindowOutput) SetBasePTS(pts vortex.PTSTick) { n.basePTS = pts }
func (n *WindowOutput) BasePTS() vortex.PTSTick       { return n.basePTS }

// Evaluate is unused directly on an output node — outputs are driven
// through EvaluateOutput by the scheduler; Evaluate exists only to satisfy
// the Node interface for uniform storage in the graph's node arena.
func (n *WindowOutput) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	return n.EvaluateOutput(probe, probe.CurrentPTS)
}

func (n *WindowOutput) EvaluateOutput(probe *vortex.RenderProbe, pts vortex.PTSTick) (bool, error) {
	if n.win == nil || !n.win.Alive() {
		return false, nil
	}
	swap := n.win.Swapchain()
	image := swap.CurrentImage()
	cmd := n.cmdLists[n.slot]

	cmd.ResourceBarrier(image, gpu.StatePresent, gpu.StateRenderTarget)
	forward := &vortex.ForwardDescriptor{
		Target:        image.RenderTargetView(),
		Width:         n.width,
		Height:        n.height,
		PoolSlotIndex: vortex.SwapchainSlot,
		Depth:         0,
	}
	ok, err := n.recurse(probe, cmd, forward)
	if err != nil {
		return false, err
	}
	cmd.ResourceBarrier(image, gpu.StateRenderTarget, gpu.StatePresent)
	if err := cmd.Close(); err != nil {
		return false, errcode.NewResourceError("windowoutput.evaluateoutput", err)
	}

	n.signaled[n.slot]++
	n.fence.Signal(n.signaled[n.slot])
	if err := swap.Present(); err != nil {
		return false, errcode.NewResourceError("windowoutput.present", err)
	}
	n.slot = (n.slot + 1) % maxSwapchainImages
	return ok, nil
}

func (n *WindowOutput) recurse(probe *vortex.RenderProbe, cmd gpu.CommandList, forward *vortex.ForwardDescriptor) (bool, error) {
	sink := n.sinks[0]
	if !sink.Connected() {
		return false, nil
	}
	upstream, ok := probe.Graph.NodeByHandle(sink.SourceNode)
	if !ok {
		return false, nil
	}
	sub := *probe
	sub.CmdList = cmd
	return upstream.Evaluate(&sub, forward)
}

func (n *WindowOutput) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *WindowOutput) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *WindowOutput) GetProperties() string { return n.Serialize() }
