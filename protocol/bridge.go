// Copyright © 2024 Vortex Studio.

// Package protocol implements the UI message bridge of spec section 6: a
// request/response contract carried over a message queue keyed by
// correlation id rather than a host-side coroutine runtime (Design Notes:
// "model as a message queue with correlation identifiers"). Bridge resolves
// requests against a fixed handler table; Transport (a *WebsocketTransport
// in production) carries the JSON envelopes to the out-of-scope UI host.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/internal/errcode"
)

// Request is one inbound call: {id, name, args}.
type Request struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Args []Value   `json:"args"`
}

// Response is the co_return-shaped reply pushed back for a Request.
type Response struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Value Value     `json:"value"`
	Error string    `json:"error,omitempty"`
}

// Push is an unsolicited, uncorrelated message — a property-change
// notification with no request behind it (section 5: notifier callbacks
// fire synchronously and have no co_return counterpart).
type Push struct {
	Name  string `json:"name"`
	Node  uint32 `json:"node"`
	Index int    `json:"index,omitempty"`
	Value string `json:"value,omitempty"`
}

// Value is a loosely-typed argument/return carrier for the wire protocol's
// mixed arg tuples (string, double, int, bool). It marshals as a bare JSON
// scalar and unmarshals by sniffing the JSON token kind, mirroring how the
// host runtime's dynamically typed argument arrays cross the wire.
type Value struct {
	str    string
	num    float64
	b      bool
	isStr  bool
	isBool bool
}

func StringValue(s string) Value   { return Value{str: s, isStr: true} }
func DoubleValue(f float64) Value  { return Value{num: f} }
func IntValue(i int) Value         { return Value{num: float64(i)} }
func BoolValue(b bool) Value       { return Value{b: b, isBool: true} }
func HandleValue(h vortex.Handle) Value {
	return Value{num: float64(h.Bits())}
}

func (v Value) Str() string     { return v.str }
func (v Value) Float64() float64 { return v.num }
func (v Value) Int() int        { return int(v.num) }
func (v Value) Bool() bool      { return v.b }
func (v Value) Handle() vortex.Handle {
	return vortex.HandleFromBits(uint32(v.num))
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.isStr:
		return json.Marshal(v.str)
	case v.isBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.num)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value{str: s, isStr: true}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Value{b: b, isBool: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("protocol: value %q is neither string, bool, nor number", string(data))
	}
	*v = Value{num: f}
	return nil
}

// Handler answers one named request against the graph, returning the
// value to wrap in a co_return reply.
type Handler func(g *vortex.Graph, args []Value) (Value, error)

// Bridge dispatches named requests against a fixed handler table built
// once at construction (spec 4.L) and multiplexes property-change pushes
// from the graph's notifier callback onto the same outbound stream a
// Transport drains.
type Bridge struct {
	graph    *vortex.Graph
	factory  *vortex.NodeFactory
	handlers map[string]Handler

	out chan any // *Response or *Push
}

// NewBridge constructs a Bridge bound to g with the full section-6 handler
// table registered, and installs itself as g's property-change callback.
func NewBridge(g *vortex.Graph) *Bridge {
	b := &Bridge{
		graph:   g,
		factory: g.Factory(),
		out:     make(chan any, 256),
	}
	b.handlers = map[string]Handler{
		"GetNodeTypesAsync":       b.getNodeTypesAsync,
		"CreateNodeAsync":         b.createNodeAsync,
		"GetNodePropertiesAsync":  b.getNodePropertiesAsync,
		"RemoveNode":              b.removeNode,
		"ConnectNodes":            b.connectNodes,
		"DisconnectNodes":         b.disconnectNodes,
		"SetNodeInfo":             b.setNodeInfo,
		"SetNodeProperty":         b.setNodeProperty,
	}
	g.SetChangeCallback(b.onPropertyChange)
	return b
}

// Outbound is the channel a Transport reads replies and pushes from.
func (b *Bridge) Outbound() <-chan any { return b.out }

// Dispatch resolves req.Name against the handler table and runs it
// synchronously on the caller's goroutine (spec 4.L: "mirrors Notifier
// callbacks run synchronously on the caller's thread"), then enqueues the
// co_return reply. Dispatch never blocks on a full outbound queue for more
// than the channel send itself — callers own the goroutine they call from.
func (b *Bridge) Dispatch(req Request) {
	h, ok := b.handlers[req.Name]
	if !ok {
		b.reply(req.ID, req.Name, Value{}, fmt.Errorf("protocol: unknown message %q", req.Name))
		return
	}
	v, err := h(b.graph, req.Args)
	b.reply(req.ID, req.Name, v, err)
}

func (b *Bridge) reply(id uuid.UUID, name string, v Value, err error) {
	resp := &Response{ID: id, Name: "co_return", Value: v}
	if err != nil {
		resp.Error = err.Error()
		log.Warn().Err(err).Str("request", name).Msg("protocol: handler failed")
	}
	select {
	case b.out <- resp:
	default:
		log.Warn().Str("request", name).Msg("protocol: outbound queue full, dropping reply")
	}
}

func (b *Bridge) onPropertyChange(node vortex.Handle, index int, serialized string) {
	push := &Push{Name: "NotifyPropertyChange", Node: node.Bits(), Index: index, Value: serialized}
	select {
	case b.out <- push:
	default:
		log.Warn().Uint32("node", node.Bits()).Msg("protocol: outbound queue full, dropping push")
	}
}

func (b *Bridge) getNodeTypesAsync(g *vortex.Graph, args []Value) (Value, error) {
	types := make(map[string]vortex.NodeTypeInfo)
	for _, name := range b.typeNames() {
		if info, ok := b.typeInfo(name); ok {
			types[name] = info
		}
	}
	buf, err := json.Marshal(types)
	if err != nil {
		return Value{}, errcode.NewConfigError("bridge.getnodetypesasync", err)
	}
	return StringValue(string(buf)), nil
}

func (b *Bridge) createNodeAsync(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, errcode.NewConfigError("bridge.createnodeasync", fmt.Errorf("missing type name argument"))
	}
	h, err := g.CreateNode(args[0].Str(), "")
	if err != nil {
		return Value{}, err
	}
	return HandleValue(h), nil
}

func (b *Bridge) getNodePropertiesAsync(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, errcode.NewConfigError("bridge.getnodepropertiesasync", fmt.Errorf("missing handle argument"))
	}
	n, ok := g.NodeByHandle(args[0].Handle())
	if !ok {
		return Value{}, errcode.NewConfigError("bridge.getnodepropertiesasync", fmt.Errorf("unknown or stale node handle"))
	}
	return StringValue(n.GetProperties()), nil
}

func (b *Bridge) removeNode(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, errcode.NewConfigError("bridge.removenode", fmt.Errorf("missing handle argument"))
	}
	g.RemoveNode(args[0].Handle())
	return Value{}, nil
}

func (b *Bridge) connectNodes(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 4 {
		return Value{}, errcode.NewConfigError("bridge.connectnodes", fmt.Errorf("expected (from, fromIndex, to, toIndex)"))
	}
	ok, err := g.Connect(args[0].Handle(), args[1].Int(), args[2].Handle(), args[3].Int())
	if err != nil {
		return Value{}, err
	}
	return BoolValue(ok), nil
}

func (b *Bridge) disconnectNodes(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 4 {
		return Value{}, errcode.NewConfigError("bridge.disconnectnodes", fmt.Errorf("expected (from, fromIndex, to, toIndex)"))
	}
	ok := g.Disconnect(args[0].Handle(), args[1].Int(), args[2].Handle(), args[3].Int())
	return BoolValue(ok), nil
}

func (b *Bridge) setNodeInfo(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 2 {
		return Value{}, errcode.NewConfigError("bridge.setnodeinfo", fmt.Errorf("expected (handle, info)"))
	}
	n, ok := g.NodeByHandle(args[0].Handle())
	if !ok {
		return Value{}, errcode.NewConfigError("bridge.setnodeinfo", fmt.Errorf("unknown or stale node handle"))
	}
	n.SetInfo(args[1].Str())
	return Value{}, nil
}

func (b *Bridge) setNodeProperty(g *vortex.Graph, args []Value) (Value, error) {
	if len(args) < 3 {
		return Value{}, errcode.NewConfigError("bridge.setnodeproperty", fmt.Errorf("expected (handle, index, value)"))
	}
	n, ok := g.NodeByHandle(args[0].Handle())
	if !ok {
		return Value{}, errcode.NewConfigError("bridge.setnodeproperty", fmt.Errorf("unknown or stale node handle"))
	}
	pv, err := decodePropertyValue(n, args[1].Int(), args[2].Str())
	if err != nil {
		return Value{}, errcode.NewConfigError("bridge.setnodeproperty", err)
	}
	if err := n.SetProperty(args[1].Int(), pv, true); err != nil {
		return Value{}, err
	}
	return Value{}, nil
}

// decodePropertyValue parses the wire-format string value (spec section 6's
// property serialization grammar) against the property's declared kind.
func decodePropertyValue(n vortex.Node, index int, raw string) (vortex.PropertyValue, error) {
	for _, d := range propertyDescriptors(n) {
		if d.Index != index {
			continue
		}
		return vortex.DeserializeValue(d.Kind, raw)
	}
	return vortex.PropertyValue{}, fmt.Errorf("no property registered at index %d", index)
}

func propertyDescriptors(n vortex.Node) []vortex.PropertyDescriptor {
	type describable interface {
		Descriptors() []vortex.PropertyDescriptor
	}
	if d, ok := n.(describable); ok {
		return d.Descriptors()
	}
	return nil
}

func (b *Bridge) typeNames() []string { return b.factory.TypeNames() }

func (b *Bridge) typeInfo(name string) (vortex.NodeTypeInfo, bool) { return b.factory.Info(name) }
