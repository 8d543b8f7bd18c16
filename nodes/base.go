// Copyright © 2024 Vortex Studio.

// Package nodes implements spec 4.K's concrete node types: image and
// stream inputs, the blend/transform/color-correction filters, and the
// window/NDI outputs. Every type is a concrete struct embedding a property
// record and implementing vortex.Node by composition rather than through
// compile-time mixin inheritance (Design Notes item on CRTP), and each
// registers its constructor into a caller-supplied *vortex.NodeFactory
// rather than through a package-level init singleton (Design Notes item on
// global singletons).
package nodes

import (
	"github.com/vortexstudio/vortex"
)

// portBase is embedded by every node type and supplies the Node interface
// members that hold no type-specific state: display info, evaluation
// strategy, and the fixed sink/source slices sized at construction.
type portBase struct {
	typeName string
	info     string
	strategy vortex.EvalStrategy
	sinks    []vortex.Sink
	sources  []vortex.Source
}

func newPortBase(typeName string, strategy vortex.EvalStrategy, sinks []vortex.Sink, sources []vortex.Source) portBase {
	return portBase{typeName: typeName, strategy: strategy, sinks: sinks, sources: sources}
}

func (b *portBase) Sinks() []vortex.Sink               { return b.sinks }
func (b *portBase) Sources() []vortex.Source           { return b.sources }
func (b *portBase) Info() string                       { return b.info }
func (b *portBase) SetInfo(s string)                   { b.info = s }
func (b *portBase) Type() string                       { return b.typeName }
func (b *portBase) EvaluationStrategy() vortex.EvalStrategy { return b.strategy }

// Register installs every node type this package implements into factory,
// under the names the UI protocol's GetNodeTypesAsync and CreateNodeAsync
// handlers expect.
func Register(factory *vortex.NodeFactory) {
	registerImageInput(factory)
	registerStreamInput(factory)
	registerBlend(factory)
	registerTransform(factory)
	registerColorCorrection(factory)
	registerWindowOutput(factory)
	registerNDIOutput(factory)
}
