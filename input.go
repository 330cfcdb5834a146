package audiograph

import "weak"

// NodeInput is one input port: it fans in zero or more upstream outputs,
// summing them into an internal Bus sized to the negotiated channel count
// (§4.2). With zero connections, the bus is zeroed and marked silent.
type NodeInput struct {
	owner weak.Pointer[Node]

	connectedOutputs []*NodeOutput
	bus              *Bus
}

func newNodeInput(owner weak.Pointer[Node]) *NodeInput {
	return &NodeInput{
		owner: owner,
		bus:   NewBus(1, DefaultFrames),
	}
}

// Bus returns the input's internal summing bus, valid after pull.
func (in *NodeInput) Bus() *Bus { return in.bus }

// node returns the owning Node, or nil if already collected.
func (in *NodeInput) node() *Node { return in.owner.Value() }

// IsConnected reports whether any output feeds this input.
func (in *NodeInput) IsConnected() bool { return len(in.connectedOutputs) > 0 }

// NumberOfRenderingConnections mirrors NodeOutput's fan-out count, counted
// from the input's side, for graph-walking code (e.g. PannerNode's
// upstream-source discovery).
func (in *NodeInput) NumberOfRenderingConnections() int {
	n := 0
	for _, o := range in.connectedOutputs {
		owner := o.node()
		if owner == nil {
			continue
		}
		for _, c := range o.renderingConnections {
			if c == in {
				n++
				break
			}
		}
	}
	return n
}

// RenderingOutput returns the i'th upstream output currently wired into
// this input's rendering set (as opposed to connectedOutputs, which may
// include disabled/pending connections). Used by graph-walking code.
func (in *NodeInput) RenderingOutput(i int) *NodeOutput {
	idx := 0
	for _, o := range in.connectedOutputs {
		for _, c := range o.renderingConnections {
			if c == in {
				if idx == i {
					return o
				}
				idx++
				break
			}
		}
	}
	return nil
}

// updateChannelCount recomputes the negotiated channel count: 1 if
// unconnected, otherwise the max channel count across connected outputs.
// Must be called under the graph lock.
func (in *NodeInput) updateChannelCount() {
	count := 1
	for _, o := range in.connectedOutputs {
		if c := o.bus.NumChannels(); c > count {
			count = c
		}
	}
	in.bus.resize(count)
	if owner := in.node(); owner != nil {
		owner.checkNumberOfChannelsForInput(in)
	}
}

func (in *NodeInput) disconnectFrom(o *NodeOutput) {
	for i, c := range in.connectedOutputs {
		if c == o {
			in.connectedOutputs = append(in.connectedOutputs[:i], in.connectedOutputs[i+1:]...)
			break
		}
	}
	in.updateChannelCount()
}

// pull causes every upstream output's owner to render (processIfNecessary,
// fan-out memoized), then mixes their buses into this input's internal bus.
// With no connections, the bus is zeroed and marked silent.
func (in *NodeInput) pull(ctx *Context, frames int) {
	if len(in.connectedOutputs) == 0 {
		in.bus.Zero()
		return
	}

	in.bus.Zero()
	for _, o := range in.connectedOutputs {
		if !o.enabled {
			continue
		}
		owner := o.node()
		if owner == nil {
			continue
		}
		owner.processIfNecessary(ctx, frames)
		sumInto(in.bus, o.bus)
	}
}
