package audiograph

import "weak"

// NodeOutput is one output port. It owns the Bus a node's Process writes
// into, and tracks which inputs are wired to it. connectedInputs is the
// full, possibly-mid-mutation set; renderingConnections is the snapshot the
// audio thread actually reads from, updated only at graph-lock points (§4.3)
// so a render quantum never observes a half-finished topology change.
type NodeOutput struct {
	owner weak.Pointer[Node]

	bus *Bus

	connectedInputs      map[*NodeInput]struct{}
	renderingConnections []*NodeInput
	connectedParams      []*Param

	enabled bool
}

func newNodeOutput(owner weak.Pointer[Node], numChannels int) *NodeOutput {
	return &NodeOutput{
		owner:           owner,
		bus:             NewBus(numChannels, DefaultFrames),
		connectedInputs: make(map[*NodeInput]struct{}),
		enabled:         true,
	}
}

// Bus returns the output's render bus.
func (o *NodeOutput) Bus() *Bus { return o.bus }

// node returns the owning Node, or nil if it has already been collected
// (only possible once nothing strong reaches it anymore).
func (o *NodeOutput) node() *Node { return o.owner.Value() }

// Node is the exported form of node, for graph-walking code outside this
// package (e.g. PannerNode's upstream Doppler-source discovery).
func (o *NodeOutput) Node() *Node { return o.node() }

// NumRenderingConnections returns the fan-out count the audio thread sees
// this quantum.
func (o *NodeOutput) NumRenderingConnections() int { return len(o.renderingConnections) }

// connect registers in as a downstream consumer of o. Must be called under
// the graph lock.
func (o *NodeOutput) connect(in *NodeInput) {
	if _, ok := o.connectedInputs[in]; ok {
		return
	}
	o.connectedInputs[in] = struct{}{}
	in.connectedOutputs = append(in.connectedOutputs, o)
	in.updateChannelCount()
	if o.enabled {
		o.renderingConnections = append(o.renderingConnections, in)
	}
}

// disconnect removes in from o's downstream set and derefs in's owning
// node's connection ref — the receiving node, not o's own owner, is what
// an inbound connection keeps alive (§4.1). Must be called under the graph
// lock.
func (o *NodeOutput) disconnect(in *NodeInput) {
	if _, ok := o.connectedInputs[in]; !ok {
		return
	}
	delete(o.connectedInputs, in)
	o.removeRendering(in)
	in.disconnectFrom(o)
	if dst := in.node(); dst != nil {
		dst.finishDeref(refConnection)
	}
}

func (o *NodeOutput) removeRendering(in *NodeInput) {
	for i, c := range o.renderingConnections {
		if c == in {
			o.renderingConnections = append(o.renderingConnections[:i], o.renderingConnections[i+1:]...)
			return
		}
	}
}

// disconnectAll tears down every downstream connection: node inputs deref
// their owning (receiving) node via disconnect, while param modulations —
// having no connectionRef of their own to hold — deref o's own owner
// instead, mirroring ConnectParam's direction. Must be called under the
// graph lock.
func (o *NodeOutput) disconnectAll() {
	for in := range o.connectedInputs {
		o.disconnect(in)
	}
	if len(o.connectedParams) > 0 {
		owner := o.node()
		for _, p := range o.connectedParams {
			p.disconnectOutput(o)
			if owner != nil {
				owner.finishDeref(refConnection)
			}
		}
		o.connectedParams = nil
	}
}

// enable wires o back into every connected input's rendering set. Called
// when a node regains a connection after being disabled.
func (o *NodeOutput) enable() {
	if o.enabled {
		return
	}
	o.enabled = true
	o.renderingConnections = o.renderingConnections[:0]
	for in := range o.connectedInputs {
		o.renderingConnections = append(o.renderingConnections, in)
	}
}

// disable severs o from every connected input's rendering set without
// forgetting the connections themselves, so a later enable() restores them.
func (o *NodeOutput) disable() {
	if !o.enabled {
		return
	}
	o.enabled = false
	o.renderingConnections = nil
}
