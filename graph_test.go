// Copyright © 2024 Vortex Studio.

package vortex

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/vortexstudio/vortex/gpu"
)

const fakeFilterTypeName = "fake_filter"

// fakeFilterNode is the minimal Node implementation graph_test.go needs to
// exercise CreateNode/Connect/Disconnect/RemoveNode without pulling in any
// concrete node package (which would import this package and cycle).
type fakeFilterNode struct {
	info     string
	sinks    []Sink
	sources  []Source
	strategy EvalStrategy
}

func newFakeFilterNode(strategy EvalStrategy) *fakeFilterNode {
	return &fakeFilterNode{
		sinks:    []Sink{{Kind: SinkRenderTexture}},
		sources:  []Source{newSource(SinkRenderTexture)},
		strategy: strategy,
	}
}

func (n *fakeFilterNode) Update(gfx gpu.Device) {}
func (n *fakeFilterNode) Evaluate(probe *RenderProbe, forward *ForwardDescriptor) (bool, error) {
	return true, nil
}
func (n *fakeFilterNode) EvaluateAudio(probe *RenderProbe) {}
func (n *fakeFilterNode) SetProperty(index int, value PropertyValue, notify bool) error { return nil }
func (n *fakeFilterNode) GetProperties() string                                        { return "{}" }
func (n *fakeFilterNode) Sinks() []Sink                                                 { return n.sinks }
func (n *fakeFilterNode) Sources() []Source                                             { return n.sources }
func (n *fakeFilterNode) Info() string                                                  { return n.info }
func (n *fakeFilterNode) SetInfo(s string)                                              { n.info = s }
func (n *fakeFilterNode) Type() string                                                  { return fakeFilterTypeName }
func (n *fakeFilterNode) EvaluationStrategy() EvalStrategy                              { return n.strategy }

func newTestGraph() *Graph {
	factory := NewNodeFactory()
	factory.Register(fakeFilterTypeName, NodeTypeInfo{Kind: NodeFilter, Sinks: 1, Sources: 1},
		func(gfx gpu.Device, notifier *Notifier, props string) (Node, error) {
			return newFakeFilterNode(EvalDynamic), nil
		})
	return NewGraph(factory, nil, NewPTSClock(nil), zerolog.Nop())
}

func TestGraphCreateAndRemoveNode(t *testing.T) {
	g := newTestGraph()

	h, err := g.CreateNode(fakeFilterTypeName, "")
	if err != nil {
		t.Fatalf("unexpected error creating node: %v", err)
	}
	if !h.Valid(g) {
		t.Fatalf("expected newly created handle to be valid")
	}
	if _, ok := g.NodeByHandle(h); !ok {
		t.Fatalf("expected to resolve the created node by handle")
	}

	g.RemoveNode(h)
	if h.Valid(g) {
		t.Errorf("expected handle to be invalid after RemoveNode")
	}
	if _, ok := g.NodeByHandle(h); ok {
		t.Errorf("expected NodeByHandle to fail for a removed node")
	}
}

func TestGraphCreateNodeUnknownType(t *testing.T) {
	g := newTestGraph()
	if _, err := g.CreateNode("does_not_exist", ""); err == nil {
		t.Errorf("expected an error creating an unregistered node type")
	}
}

func TestGraphConnectAndDisconnect(t *testing.T) {
	g := newTestGraph()
	a, err := g.CreateNode(fakeFilterTypeName, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := g.CreateNode(fakeFilterTypeName, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := g.Connect(a, 0, b, 0)
	if err != nil || !ok {
		t.Fatalf("expected connect to succeed, got ok=%v err=%v", ok, err)
	}

	bNode, _ := g.NodeByHandle(b)
	if !bNode.Sinks()[0].Connected() {
		t.Errorf("expected b's sink to be connected after Connect")
	}

	// connecting b back to a would close a cycle and must be rejected.
	if ok, err := g.Connect(b, 0, a, 0); ok || err == nil {
		t.Errorf("expected a cyclic connection to be rejected, got ok=%v err=%v", ok, err)
	}

	if !g.Disconnect(a, 0, b, 0) {
		t.Errorf("expected Disconnect to report success for an existing connection")
	}
	if bNode.Sinks()[0].Connected() {
		t.Errorf("expected b's sink to be disconnected after Disconnect")
	}
}

func TestGraphConnectRejectsPortKindMismatch(t *testing.T) {
	g := newTestGraph()
	a, _ := g.CreateNode(fakeFilterTypeName, "")
	b, _ := g.CreateNode(fakeFilterTypeName, "")
	bNode, _ := g.NodeByHandle(b)
	bNode.Sinks()[0].Kind = SinkAudio

	if ok, err := g.Connect(a, 0, b, 0); ok || err == nil {
		t.Errorf("expected a port-kind mismatch to be rejected, got ok=%v err=%v", ok, err)
	}
}

func TestGraphTraverseWithNoOutputsIsANoop(t *testing.T) {
	g := newTestGraph()
	called := false
	err := g.Traverse(func(output Handle, pts PTSTick) *RenderProbe {
		called = true
		return &RenderProbe{}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Errorf("expected the probe factory not to be invoked when there are no scheduled outputs")
	}
}
