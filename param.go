package audiograph

import (
	"math"
	"sync/atomic"
)

// defaultSmoothingTau is the exponential smoothing time constant (seconds)
// used to dezipper Param reads per §4.4. It is fixed, not configurable,
// matching the spec's "fixed smoothing time" — sample-accurate automation
// scheduling is explicitly a non-goal.
const defaultSmoothingTau = 0.05

// Param is a per-node scalar control value. Control-thread code calls
// SetTarget (an atomic store, no lock). The audio thread calls Render once
// per quantum to get either a dezippered ramp toward the target or, if any
// output is connected as an audio-rate modulator, the sum of those outputs
// added to the dezippered base value, clamped to [Min, Max].
type Param struct {
	Name         string
	Min, Max     float64
	defaultValue float64

	target uint64 // atomic, math.Float64bits

	// previous is only ever touched from the audio thread (Render), so it
	// needs no synchronization.
	previous float64
	snapped  bool

	// connections is read by Render (audio thread) and mutated by
	// ConnectParam/disconnect (control thread), always under the owning
	// Context's graph lock.
	connections []*NodeOutput

	ctx *Context
}

// NewParam constructs a Param bound to ctx, clamped to [min, max], starting
// at defaultValue (itself clamped into range). Binding to a context is what
// lets ConnectParam reject cross-context connections (§4.1).
func NewParam(ctx *Context, name string, defaultValue, min, max float64) *Param {
	v := clamp(defaultValue, min, max)
	p := &Param{
		Name:         name,
		Min:          min,
		Max:          max,
		defaultValue: v,
		previous:     v,
		ctx:          ctx,
	}
	atomic.StoreUint64(&p.target, math.Float64bits(v))
	return p
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// SetTarget atomically stores a new target value, clamped silently to
// [Min, Max]. Safe to call from the control thread while the audio thread
// concurrently calls Render.
func (p *Param) SetTarget(v float64) {
	atomic.StoreUint64(&p.target, math.Float64bits(clamp(v, p.Min, p.Max)))
}

// Target returns the last value passed to SetTarget (or the default, before
// any call), without regard to dezippering.
func (p *Param) Target() float64 {
	return math.Float64frombits(atomic.LoadUint64(&p.target))
}

// Reset snaps the next Render to the target instantly, skipping the
// dezipper ramp. Used when a node is reused or when a discontinuity is
// intentional (e.g. a seek).
func (p *Param) Reset() {
	p.previous = p.Target()
	p.snapped = false
}

// disconnectOutput removes out from the set of connected modulators, called
// by NodeOutput.disconnectAll under the graph lock.
func (p *Param) disconnectOutput(out *NodeOutput) {
	for i, c := range p.connections {
		if c == out {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			return
		}
	}
}

// isModulated reports whether any output currently feeds this param at
// audio rate. Only meaningful while the graph lock is held.
func (p *Param) isModulated() bool {
	return len(p.connections) > 0
}

// Render produces a frames-length ramp for the current quantum. With no
// modulators connected, it's an exponential dezipper from the previous
// value toward the target; it snaps to the target on the very first call.
// With modulators connected, each connected output is pulled and summed
// sample-by-sample on top of the dezippered base, then the whole ramp is
// clamped to [Min, Max].
func (p *Param) Render(ctx *Context, frames int) []float64 {
	target := p.Target()
	ramp := make([]float64, frames)

	if !p.snapped {
		p.previous = target
		p.snapped = true
	}

	coeff := 1 - math.Exp(-1/(defaultSmoothingTau*float64(ctx.sampleRate)))
	v := p.previous
	for i := 0; i < frames; i++ {
		v += (target - v) * coeff
		ramp[i] = v
	}
	p.previous = v

	if p.isModulated() {
		for _, out := range p.connections {
			node := out.node()
			if node == nil {
				continue
			}
			node.processIfNecessary(ctx, frames)
			bus := out.bus
			if bus == nil || bus.Silent {
				continue
			}
			row := bus.Data[0]
			n := frames
			if len(row) < n {
				n = len(row)
			}
			for i := 0; i < n; i++ {
				ramp[i] += row[i]
			}
		}
		for i := range ramp {
			ramp[i] = clamp(ramp[i], p.Min, p.Max)
		}
	}

	return ramp
}

// ValueAt reads a single sample from a previously rendered ramp, clamping
// the index to the ramp's bounds. Convenience for processors that want a
// scalar (e.g. distance gain) rather than a full ramp.
func ValueAt(ramp []float64, i int) float64 {
	if len(ramp) == 0 {
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i >= len(ramp) {
		i = len(ramp) - 1
	}
	return ramp[i]
}
