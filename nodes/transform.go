// Copyright © 2024 Vortex Studio.

package nodes

import (
	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/math/lin"
)

const transformTypeName = "transform"

// Transform pulls its one upstream sink and re-draws it through an affine
// matrix uniform (spec 4.I/4.K), animatable via a PropMat4 property so the
// animation bridge's matrix decompose/recompose path can drive it directly.
type Transform struct {
	portBase
	vortex.PropertyBase

	matrix lin.M4
}

func registerTransform(factory *vortex.NodeFactory) {
	factory.Register(transformTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeFilter,
		Sinks:   1,
		Sources: 1,
	}, newTransform)
}

func newTransform(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
	n := &Transform{
		portBase: newPortBase(transformTypeName, vortex.EvalDynamic,
			[]vortex.Sink{{Kind: vortex.SinkRenderTexture}},
			[]vortex.Source{{Kind: vortex.SinkRenderTexture, Targets: map[vortex.SourceTarget]struct{}{}}}),
		matrix: *lin.NewM4I(),
	}
	n.BindNotifier(notifier)
	n.RegisterField(vortex.PropertyDescriptor{
		Name:  "matrix",
		Index: 0,
		Kind:  vortex.PropMat4,
		Get:   func() vortex.PropertyValue { return vortex.NewMat4Value(n.matrix) },
		Set:   func(v vortex.PropertyValue) { n.matrix = v.Mat4() },
	})
	if props != "" {
		if err := n.Deserialize(props, false); err != nil {
			return nil, errcode.NewConfigError("transform.new", err)
		}
	}
	return n, nil
}

func (n *Transform) Update(gfx gpu.Device) {}

func (n *Transform) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
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
	probe.CmdList.BindPipeline("transform")
	table.BindOffset(probe.CmdList, 0)
	probe.CmdList.Draw()
	probe.CmdList.EndRenderPass()
	return true, nil
}

func (n *Transform) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *Transform) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *Transform) GetProperties() string { return n.Serialize() }
