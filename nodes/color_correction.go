// Copyright © 2024 Vortex Studio.

package nodes

import (
	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
)

const colorCorrectionTypeName = "color_correction"

// ColorCorrection pulls its one upstream sink and re-draws it through a
// LUT and brightness/contrast/saturation pipeline (spec 4.I/4.K). When
// both the LUT and the scalar adjustments are at their identity values,
// Evaluate skips the transient and forwards the upstream node straight
// into its own render target instead.
type ColorCorrection struct {
	portBase
	vortex.PropertyBase

	brightness float64
	contrast   float64
	saturation float64
	lutPath    string
}

// trivial reports whether this node would produce an output identical to
// its upstream input, per the original's has_lut/has_adjustments check.
func (n *ColorCorrection) trivial() bool {
	return n.lutPath == "" && n.brightness == 0 && n.contrast == 1 && n.saturation == 1
}

func registerColorCorrection(factory *vortex.NodeFactory) {
	factory.Register(colorCorrectionTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeFilter,
		Sinks:   1,
		Sources: 1,
	}, newColorCorrection)
}

func newColorCorrection(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
	n := &ColorCorrection{
		portBase: newPortBase(colorCorrectionTypeName, vortex.EvalDynamic,
			[]vortex.Sink{{Kind: vortex.SinkRenderTexture}},
			[]vortex.Source{{Kind: vortex.SinkRenderTexture, Targets: map[vortex.SourceTarget]struct{}{}}}),
		contrast:   1.0,
		saturation: 1.0,
	}
	n.BindNotifier(notifier)
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "brightness", Index: 0, Kind: vortex.PropFloat64,
		Get: func() vortex.PropertyValue { return vortex.NewFloat64Value(n.brightness) },
		Set: func(v vortex.PropertyValue) { n.brightness = v.Float64() },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "contrast", Index: 1, Kind: vortex.PropFloat64,
		Get: func() vortex.PropertyValue { return vortex.NewFloat64Value(n.contrast) },
		Set: func(v vortex.PropertyValue) { n.contrast = v.Float64() },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "saturation", Index: 2, Kind: vortex.PropFloat64,
		Get: func() vortex.PropertyValue { return vortex.NewFloat64Value(n.saturation) },
		Set: func(v vortex.PropertyValue) { n.saturation = v.Float64() },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name: "lut", Index: 3, Kind: vortex.PropPath,
		Get: func() vortex.PropertyValue { return vortex.NewPathValue(n.lutPath) },
		Set: func(v vortex.PropertyValue) { n.lutPath = v.Str() },
	})
	if props != "" {
		if err := n.Deserialize(props, false); err != nil {
			return nil, errcode.NewConfigError("colorcorrection.new", err)
		}
	}
	return n, nil
}

func (n *ColorCorrection) Update(gfx gpu.Device) {}

func (n *ColorCorrection) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	if n.trivial() {
		return n.recurseBypass(probe, forward)
	}

	lease, ok, err := vortex.AcquireUpstream(probe, n.sinks[0], forward.Depth+1, forward)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer lease.Release()

	table, err := probe.Descriptors.SuballocateTable(1)
	if err != nil {
		return false, err
	}
	table.WriteTexture(0, lease.Texture().ShaderResourceView())

	probe.CmdList.BeginRenderPass(forward.Target)
	probe.CmdList.SetViewport(forward.Width, forward.Height)
	probe.CmdList.BindPipeline("color_correct")
	table.BindOffset(probe.CmdList, 0)
	probe.CmdList.Draw()
	probe.CmdList.EndRenderPass()
	return true, nil
}

// recurseBypass skips the transient render target entirely and hands the
// node's own forward target straight to its upstream source, mirroring
// the original's pass-through when neither a LUT nor an adjustment is
// configured.
func (n *ColorCorrection) recurseBypass(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	sink := n.sinks[0]
	if !sink.Connected() {
		return false, nil
	}
	upstream, ok := probe.Graph.NodeByHandle(sink.SourceNode)
	if !ok {
		return false, nil
	}
	child := &vortex.ForwardDescriptor{
		Target:        forward.Target,
		Width:         forward.Width,
		Height:        forward.Height,
		PoolSlotIndex: forward.PoolSlotIndex,
		Generation:    forward.Generation,
		Depth:         forward.Depth + 1,
	}
	return upstream.Evaluate(probe, child)
}

func (n *ColorCorrection) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *ColorCorrection) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *ColorCorrection) GetProperties() string { return n.Serialize() }
