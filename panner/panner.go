// Package panner implements PannerNode, the spec's worked-example
// spatializer: a Processor that pans a mono or stereo source around a
// listener by azimuth/elevation, applies distance and cone attenuation, and
// reports a Doppler pitch-shift rate to any upstream source that asks for
// one (§4.6).
package panner

import (
	"math"

	"github.com/dudk/audiograph"
)

// PanningModel selects the spatialization strategy.
type PanningModel int

const (
	EqualPower PanningModel = iota
	HRTF
	// SoundField is reserved by the spec and always rejected by
	// SetPanningModel with KindNotSupported.
	SoundField
)

// DistanceModel selects how source-to-listener distance attenuates gain.
type DistanceModel int

const (
	Linear DistanceModel = iota
	Inverse
	Exponential
)

const (
	defaultSmoothingTau = 0.05
	dopplerShiftMax      = 16.0
	dopplerShiftMin      = 1.0 / 8.0
)

// Node is a PannerNode: one input, one stereo output, driven entirely
// through audiograph.Node's Processor contract.
type Node struct {
	ctx *audiograph.Context
	n   *audiograph.Node

	panningModel  PanningModel
	distanceModel DistanceModel

	position    audiograph.Vec3
	orientation audiograph.Vec3
	velocity    audiograph.Vec3

	refDistance   float64
	maxDistance   float64
	rolloffFactor float64

	coneInnerAngle float64
	coneOuterAngle float64
	coneOuterGain  float64

	lastTotalGain   float64
	lastSeenConnCount int64

	pan panStrategy
}

// New constructs an unconnected PannerNode bound to ctx, with one input and
// one stereo output, and registers it with the graph via audiograph.NewNode.
func New(ctx *audiograph.Context) *Node {
	p := &Node{
		ctx:            ctx,
		panningModel:   EqualPower,
		distanceModel:  Inverse,
		orientation:    audiograph.Vec3{X: 1, Y: 0, Z: 0},
		refDistance:    1,
		maxDistance:    10000,
		rolloffFactor:  1,
		coneInnerAngle: 360,
		coneOuterAngle: 360,
		coneOuterGain:  0,
		lastTotalGain:  -1,
	}
	p.n = audiograph.NewNode(ctx, "Panner", p, 1, []int{2})
	p.lastSeenConnCount = ctx.ConnectionCount()
	return p
}

// Underlying returns the graph node this panner wraps, for Connect/Disconnect
// and port access.
func (p *Node) Underlying() *audiograph.Node { return p.n }

// Initialize allocates the panning strategy for the current model. Part of
// audiograph.Initializer.
func (p *Node) Initialize() error {
	p.pan = newPanStrategy(p.panningModel)
	return nil
}

// Uninitialize releases the panning strategy. Part of audiograph.Uninitializer.
func (p *Node) Uninitialize() {
	p.pan = nil
}

// SetPosition, SetOrientation and SetVelocity are the per-source spatial
// state mutators; all are control-thread only (no internal locking — the
// graph lock held by Connect/Disconnect callers is not required here since
// these are plain field writes read once per block on the audio thread,
// matching the source's unsynchronized FloatPoint3D fields).
func (p *Node) SetPosition(v audiograph.Vec3)    { p.position = v }
func (p *Node) SetOrientation(v audiograph.Vec3) { p.orientation = v }
func (p *Node) SetVelocity(v audiograph.Vec3)    { p.velocity = v }

// SetDistanceParams configures the reference/max distance and rolloff
// factor used by the selected distance model.
func (p *Node) SetDistanceParams(refDistance, maxDistance, rolloffFactor float64) {
	p.refDistance = refDistance
	p.maxDistance = maxDistance
	p.rolloffFactor = rolloffFactor
}

// SetCone configures the directional cone: inner/outer angles in degrees and
// the gain applied outside the outer cone.
func (p *Node) SetCone(innerAngle, outerAngle, outerGain float64) {
	p.coneInnerAngle = innerAngle
	p.coneOuterAngle = outerAngle
	p.coneOuterGain = outerGain
}

// SetPanningModel switches the spatialization strategy. SoundField and any
// unrecognized value return NOT_SUPPORTED, matching the original's reserved
// enum slot.
func (p *Node) SetPanningModel(model PanningModel) error {
	switch model {
	case EqualPower, HRTF:
		if p.pan == nil || model != p.panningModel {
			p.pan = newPanStrategy(model)
			p.panningModel = model
		}
		return nil
	default:
		return audiograph.ErrNotSupported
	}
}

// SetDistanceModel switches the distance attenuation model.
func (p *Node) SetDistanceModel(model DistanceModel) error {
	switch model {
	case Linear, Inverse, Exponential:
		p.distanceModel = model
		return nil
	default:
		return audiograph.ErrNotSupported
	}
}

// LatencyTime implements audiograph.Processor: panning introduces no delay.
func (p *Node) LatencyTime() float64 { return 0 }

// TailTime implements audiograph.Processor: a panner produces no output
// after its input goes silent.
func (p *Node) TailTime() float64 { return 0 }

// Reset implements audiograph.Processor: force the gain ramp to snap on the
// next block, and reset the underlying strategy's internal state.
func (p *Node) Reset() {
	p.lastTotalGain = -1
	if p.pan != nil {
		p.pan.reset()
	}
}

// OnTopologyChange implements audiograph.TopologyObserver: when the context's
// connection counter has moved since our last observation, walk the
// upstream subgraph and pass the current Doppler rate to every
// DopplerReceiver found, mirroring notifyAudioSourcesConnectedToNode's
// recursive source discovery. The rate is only pushed on such a change.
func (p *Node) OnTopologyChange(ctx *audiograph.Context, n *audiograph.Node) {
	cc := ctx.ConnectionCount()
	if cc == p.lastSeenConnCount {
		return
	}
	p.lastSeenConnCount = cc
	notifyDopplerReceivers(n, p.dopplerRate())
}

func notifyDopplerReceivers(n *audiograph.Node, rate float64) {
	seen := make(map[*audiograph.Node]bool)
	var visit func(n *audiograph.Node)
	visit = func(n *audiograph.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		for i := 0; i < n.NumInputs(); i++ {
			in := n.Input(i)
			for j := 0; j < in.NumberOfRenderingConnections(); j++ {
				out := in.RenderingOutput(j)
				if out == nil {
					continue
				}
				upstream := out.Node()
				if upstream == nil {
					continue
				}
				if recv, ok := upstream.Kind().(audiograph.DopplerReceiver); ok {
					recv.SetDopplerRate(rate)
				}
				visit(upstream)
			}
		}
	}
	visit(n)
}

// Process implements audiograph.Processor: spatialize input(0) into
// output(0), per §4.6 steps 2-5.
func (p *Node) Process(ctx *audiograph.Context, n *audiograph.Node, frames int) error {
	dest := n.Output(0).Bus()

	if p.pan == nil || !n.Input(0).IsConnected() {
		dest.Zero()
		return nil
	}
	source := n.Input(0).Bus()
	if source == nil {
		dest.Zero()
		return nil
	}

	listener := ctx.Listener()
	azimuth, elevation := p.azimuthElevation(listener)
	p.pan.pan(azimuth, elevation, source, dest, frames)

	totalGain := p.distanceConeGain(listener)
	if p.lastTotalGain < 0 {
		p.lastTotalGain = totalGain
	}

	coeff := 1 - math.Exp(-1/(defaultSmoothingTau*float64(ctx.SampleRate())))
	finalGain := p.lastTotalGain
	for c := range dest.Data {
		row := dest.Data[c]
		g := p.lastTotalGain
		for i := range row {
			g += (totalGain - g) * coeff
			row[i] *= g
		}
		finalGain = g
	}
	p.lastTotalGain = finalGain
	dest.ClearSilence()
	return nil
}

// azimuthElevation implements the deterministic geometry from §4.6.
func (p *Node) azimuthElevation(l audiograph.Listener) (azimuth, elevation float64) {
	sourceListener := p.position.Sub(l.Position)
	if sourceListener.IsZero() {
		return 0, 0
	}
	sourceListener = sourceListener.Normalize()

	listenerRight := l.Orientation.Cross(l.Up).Normalize()
	listenerFrontNorm := l.Orientation.Normalize()
	up := listenerRight.Cross(listenerFrontNorm)

	upProjection := sourceListener.Dot(up)
	projected := sourceListener.Sub(up.Scale(upProjection)).Normalize()

	azRaw := 180.0 / math.Pi * math.Acos(clampUnit(projected.Dot(listenerRight)))
	azRaw = fixNaN(azRaw)

	if projected.Dot(listenerFrontNorm) < 0 {
		azRaw = 360 - azRaw
	}

	if azRaw >= 0 && azRaw <= 270 {
		azimuth = 90 - azRaw
	} else {
		azimuth = 450 - azRaw
	}

	elevRaw := 90 - 180.0/math.Pi*math.Acos(clampUnit(sourceListener.Dot(up)))
	elevRaw = fixNaN(elevRaw)
	switch {
	case elevRaw > 90:
		elevation = 180 - elevRaw
	case elevRaw < -90:
		elevation = -180 - elevRaw
	default:
		elevation = elevRaw
	}
	return azimuth, elevation
}

// dopplerRate implements the §4.6 Doppler formula.
func (p *Node) dopplerRate() float64 {
	listener := p.ctx.Listener()
	if listener.DopplerFactor <= 0 {
		return 1.0
	}

	sourceToListener := p.position.Sub(listener.Position)
	d := sourceToListener.Length()
	if d == 0 {
		return 1.0
	}

	sourceHasVelocity := !p.velocity.IsZero()
	listenerHasVelocity := !listener.Velocity.IsZero()
	if !sourceHasVelocity && !listenerHasVelocity {
		return 1.0
	}

	speedOfSound := listener.SpeedOfSound
	dopplerFactor := listener.DopplerFactor

	listenerProjection := -sourceToListener.Dot(listener.Velocity) / d
	sourceProjection := -sourceToListener.Dot(p.velocity) / d

	scaledSpeedOfSound := speedOfSound / dopplerFactor
	listenerProjection = math.Min(listenerProjection, scaledSpeedOfSound)
	sourceProjection = math.Min(sourceProjection, scaledSpeedOfSound)

	shift := (speedOfSound - dopplerFactor*listenerProjection) / (speedOfSound - dopplerFactor*sourceProjection)
	shift = fixNaNTo(shift, 1.0)

	if shift > dopplerShiftMax {
		shift = dopplerShiftMax
	} else if shift < dopplerShiftMin {
		shift = dopplerShiftMin
	}
	return shift
}

// distanceConeGain computes distance_gain * cone_gain per §4.6 step 3.
func (p *Node) distanceConeGain(l audiograph.Listener) float64 {
	distance := p.position.Sub(l.Position).Length()
	return p.distanceGain(distance) * p.coneGain(l)
}

func (p *Node) distanceGain(distance float64) float64 {
	ref, max, rolloff := p.refDistance, p.maxDistance, p.rolloffFactor
	switch p.distanceModel {
	case Linear:
		if ref == max {
			return 1
		}
		d := clampRange(distance, ref, max)
		return 1 - rolloff*(d-ref)/(max-ref)
	case Inverse:
		if distance < ref {
			distance = ref
		}
		return ref / (ref + rolloff*(distance-ref))
	case Exponential:
		if distance < ref {
			distance = ref
		}
		return math.Pow(distance/ref, -rolloff)
	default:
		return 1
	}
}

func (p *Node) coneGain(l audiograph.Listener) float64 {
	if p.orientation.IsZero() || (p.coneInnerAngle == 360 && p.coneOuterAngle == 360) {
		return 1
	}
	sourceToListener := l.Position.Sub(p.position).Normalize()
	orientation := p.orientation.Normalize()

	dot := sourceToListener.Dot(orientation)
	angle := 180.0 / math.Pi * math.Acos(clampUnit(dot))
	absAngle := math.Abs(angle)

	inner := p.coneInnerAngle / 2
	outer := p.coneOuterAngle / 2
	if absAngle <= inner {
		return 1
	}
	if absAngle >= outer {
		return p.coneOuterGain
	}
	x := (absAngle - inner) / (outer - inner)
	return 1 - x*(1-p.coneOuterGain)
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampRange(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func fixNaN(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func fixNaNTo(x, fallback float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fallback
	}
	return x
}
