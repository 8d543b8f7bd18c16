// Copyright © 2024 Vortex Studio.

package vortex

import (
	"fmt"
	"sync"

	"github.com/vortexstudio/vortex/gpu"
)

// node.go implements the port/connection model and the node factory.
// Per the Design Notes item on CRTP-based static polymorphism, there is no
// compile-time mixin inheritance here: each node type is a concrete struct
// implementing the Node interface by composition (embedding PropertyBase),
// and the factory is an explicit registry instance rather than a process
// singleton (Design Notes: "Global singletons... model each as an explicit
// resource the host constructs once").

// SinkKind and SourceKind name the media kind flowing through a port. A
// connection is only valid between matching kinds (spec 4.F step 2).
type SinkKind int

const (
	SinkRenderTexture SinkKind = iota
	SinkRenderTarget
	SinkAudio
)

func (k SinkKind) String() string {
	switch k {
	case SinkRenderTexture:
		return "render_texture"
	case SinkRenderTarget:
		return "render_target"
	case SinkAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Sink is an input port: a node has a fixed number of these, known at
// node-type registration. A sink is connected iff SourceNode is valid.
type Sink struct {
	Kind        SinkKind
	SourceNode  Handle
	SourceIndex int
	connected   bool
}

// Connected reports whether this sink currently has an upstream source.
func (s Sink) Connected() bool { return s.connected }

// RenderStrategy controls how a source's output is produced relative to
// its cached state: recomputed every tick (None/Direct), memoized
// (Cache), or forwarded untouched (Bypass).
type RenderStrategy int

const (
	RenderNone RenderStrategy = iota
	RenderDirect
	RenderCache
	RenderBypass
)

// SourceTarget names one (sink-owning node, sink index) pair a Source fans
// out to. It is the element type of Source.Targets, a set keyed by value.
type SourceTarget struct {
	SinkNode  Handle
	SinkIndex int
}

// Source is an output port. A source may fan out to any number of
// downstream sinks; RenderedOutputs is a bitset (one bit per scheduler
// output slot) recording which outputs already consumed this tick's
// rendering of the source, so a Cache-strategy source renders once per
// tick no matter how many outputs pull from it.
type Source struct {
	Kind            SinkKind
	Targets         map[SourceTarget]struct{}
	Strategy        RenderStrategy
	RenderedOutputs uint64
}

func newSource(kind SinkKind) Source {
	return Source{Kind: kind, Targets: make(map[SourceTarget]struct{})}
}

// Connection is a directed edge (from-node, from-index) -> (to-node,
// to-index). The connection set enforces uniqueness of directed edges;
// Connection is comparable so it can key a Go map directly.
type Connection struct {
	FromNode  Handle
	FromIndex int
	ToNode    Handle
	ToIndex   int
}

// EvalStrategy controls when a node's Evaluate result may be assumed
// unchanged from the previous tick.
type EvalStrategy int

const (
	EvalStatic EvalStrategy = iota
	EvalDynamic
	EvalInherited
)

// NodeKind broadly classifies a node for traversal and scheduling
// purposes.
type NodeKind int

const (
	NodeInput NodeKind = iota
	NodeOutput
	NodeFilter
)

// Node is the contract every node type implements. Update/Evaluate mirror
// spec 4.E: Update runs at most once per driver tick before any Evaluate;
// Evaluate produces one frame's work for one output and may recurse
// upstream through the probe.
type Node interface {
	Update(gfx gpu.Device)
	Evaluate(probe *RenderProbe, forward *ForwardDescriptor) (bool, error)
	EvaluateAudio(probe *RenderProbe)

	SetProperty(index int, value PropertyValue, notify bool) error
	GetProperties() string

	Sinks() []Sink
	Sources() []Source

	Info() string
	SetInfo(string)
	Type() string
	EvaluationStrategy() EvalStrategy
}

// OutputNode is implemented additionally by nodes of NodeKind NodeOutput:
// they provide the initial forward descriptor (the swapchain image) rather
// than receiving one, and they own the scheduler-visible output rate/size.
type OutputNode interface {
	Node
	OutputFPS() Rational
	OutputSize() (width, height int)
	SetBasePTS(pts PTSTick)
	BasePTS() PTSTick
	EvaluateOutput(probe *RenderProbe, pts PTSTick) (bool, error)
}

// NodeTypeInfo is the static shape of a node type, fixed at registration:
// sink/source counts are known up front so the graph can size port slices
// without per-node reflection.
type NodeTypeInfo struct {
	Kind    NodeKind
	Sinks   int
	Sources int
}

// NodeConstructor builds one node instance of a registered type, given a
// GPU device reference, a notifier to bind into the node's property
// record, and the node's initial serialized properties (may be empty).
type NodeConstructor func(gfx gpu.Device, notifier *Notifier, props string) (Node, error)

type registeredType struct {
	info NodeTypeInfo
	new  NodeConstructor
}

// NodeFactory is a process-wide concept turned into an explicit resource:
// the host constructs exactly one and passes it by reference to the Graph
// and to anything presenting "what node types exist" to the UI. This
// replaces the Design Notes' "global singleton" node factory/registry.
type NodeFactory struct {
	mu    sync.RWMutex
	types map[string]registeredType
}

// NewNodeFactory returns an empty factory ready for Register calls.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{types: make(map[string]registeredType)}
}

// Register adds one node type under name. Registration is expected once
// per type, from a node package's register function (e.g. nodes.Register).
func (f *NodeFactory) Register(name string, info NodeTypeInfo, ctor NodeConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[name] = registeredType{info: info, new: ctor}
}

// Create constructs a node of the named type.
func (f *NodeFactory) Create(name string, gfx gpu.Device, notifier *Notifier, props string) (Node, NodeTypeInfo, error) {
	f.mu.RLock()
	rt, ok := f.types[name]
	f.mu.RUnlock()
	if !ok {
		return nil, NodeTypeInfo{}, fmt.Errorf("vortex: unknown node type %q", name)
	}
	n, err := rt.new(gfx, notifier, props)
	if err != nil {
		return nil, NodeTypeInfo{}, err
	}
	return n, rt.info, nil
}

// Info returns the static info for a registered type.
func (f *NodeFactory) Info(name string) (NodeTypeInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rt, ok := f.types[name]
	return rt.info, ok
}

// TypeNames lists every registered node type, for GetNodeTypesAsync.
func (f *NodeFactory) TypeNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.types))
	for name := range f.types {
		names = append(names, name)
	}
	return names
}
