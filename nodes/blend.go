// Copyright © 2024 Vortex Studio.

package nodes

import (
	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
)

const blendTypeName = "blend"

// BlendMode selects which hardware blend pipeline composites the top
// input over the bottom one.
type BlendMode int32

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendAdd
	BlendSubtract
	BlendDarken
	BlendLighten
	BlendDifference
	BlendOverlay
)

// pipelineName returns the bound pipeline's name for m, falling back to
// BlendNormal for any value outside the known range.
func (m BlendMode) pipelineName() string {
	switch m {
	case BlendMultiply:
		return "blend_multiply"
	case BlendScreen:
		return "blend_screen"
	case BlendAdd:
		return "blend_add"
	case BlendSubtract:
		return "blend_subtract"
	case BlendDarken:
		return "blend_darken"
	case BlendLighten:
		return "blend_lighten"
	case BlendDifference:
		return "blend_difference"
	case BlendOverlay:
		return "blend_overlay"
	default:
		return "blend_normal"
	}
}

// Blend composites its two upstream sinks, pulled via the shared recursive
// traversal helper, under a single configured blend-mode pipeline (spec
// 4.I/4.K).
type Blend struct {
	portBase
	vortex.PropertyBase

	opacity float64
	mode    BlendMode
}

func registerBlend(factory *vortex.NodeFactory) {
	factory.Register(blendTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeFilter,
		Sinks:   2,
		Sources: 1,
	}, newBlend)
}

func newBlend(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
	n := &Blend{
		portBase: newPortBase(blendTypeName, vortex.EvalDynamic,
			[]vortex.Sink{{Kind: vortex.SinkRenderTexture}, {Kind: vortex.SinkRenderTexture}},
			[]vortex.Source{{Kind: vortex.SinkRenderTexture, Targets: map[vortex.SourceTarget]struct{}{}}}),
		opacity: 1.0,
	}
	n.BindNotifier(notifier)
	n.RegisterField(vortex.PropertyDescriptor{
		Name:  "opacity",
		Index: 0,
		Kind:  vortex.PropFloat64,
		Get:   func() vortex.PropertyValue { return vortex.NewFloat64Value(n.opacity) },
		Set:   func(v vortex.PropertyValue) { n.opacity = v.Float64() },
	})
	n.RegisterField(vortex.PropertyDescriptor{
		Name:  "blend_mode",
		Index: 1,
		Kind:  vortex.PropInt32,
		Get:   func() vortex.PropertyValue { return vortex.NewInt32Value(int32(n.mode)) },
		Set:   func(v vortex.PropertyValue) { n.mode = BlendMode(v.Int()) },
	})
	if props != "" {
		if err := n.Deserialize(props, false); err != nil {
			return nil, errcode.NewConfigError("blend.new", err)
		}
	}
	return n, nil
}

func (n *Blend) Update(gfx gpu.Device) {}

func (n *Blend) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	bottomLease, bottomOK, err := vortex.AcquireUpstream(probe, n.sinks[0], forward.Depth+1, forward)
	if err != nil {
		return false, err
	}
	if bottomOK {
		defer bottomLease.Release()
	}
	topLease, topOK, err := vortex.AcquireUpstream(probe, n.sinks[1], forward.Depth+1, forward)
	if err != nil {
		return false, err
	}
	if topOK {
		defer topLease.Release()
	}
	if !bottomOK && !topOK {
		return false, nil
	}

	table, err := probe.Descriptors.SuballocateTable(2)
	if err != nil {
		return false, err
	}
	if bottomOK {
		table.WriteTexture(0, bottomLease.Texture().ShaderResourceView())
	}
	if topOK {
		table.WriteTexture(1, topLease.Texture().ShaderResourceView())
	}

	probe.CmdList.BeginRenderPass(forward.Target)
	probe.CmdList.SetViewport(forward.Width, forward.Height)
	probe.CmdList.BindPipeline(n.mode.pipelineName())
	table.BindOffset(probe.CmdList, 0)
	probe.CmdList.Draw()
	probe.CmdList.EndRenderPass()
	return true, nil
}

func (n *Blend) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *Blend) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *Blend) GetProperties() string { return n.Serialize() }
