package panner

import (
	"math"

	"github.com/dudk/audiograph"
)

// panStrategy is the actual spatialization algorithm selected by
// PanningModel. Only the equal-power law is implemented; the HRTF model
// renders with that same law, and a real HRTF convolution engine is out of
// scope (see DESIGN.md).
type panStrategy interface {
	pan(azimuth, elevation float64, source, dest *audiograph.Bus, frames int)
	reset()
}

func newPanStrategy(model PanningModel) panStrategy {
	switch model {
	case HRTF:
		return &hrtfPanner{}
	default:
		return &equalPowerPanner{}
	}
}

// equalPowerPanner implements the classic two-channel equal-power pan law,
// folding elevation in by attenuating a source above or below the
// horizontal plane by up to 20% (most for one directly overhead or below),
// while a source on the horizontal plane is not attenuated.
type equalPowerPanner struct{}

func (e *equalPowerPanner) reset() {}

func (e *equalPowerPanner) pan(azimuth, elevation float64, source, dest *audiograph.Bus, frames int) {
	// Map azimuth in [-90, 90] degrees (front hemisphere) onto a pan
	// position in [-1, 1]; azimuth outside that range (source behind the
	// listener) is folded back symmetrically, as the original does.
	az := azimuth
	if az < -90 {
		az = -180 - az
	} else if az > 90 {
		az = 180 - az
	}
	pan := clampUnit(az / 90)

	// elevation attenuates the overall gain slightly for sources well above
	// or below the horizontal plane.
	elevGain := 1.0
	if elevation != 0 {
		e := clampUnit(elevation / 90)
		elevGain = 1 - 0.2*math.Abs(e)
	}

	x := (pan + 1) / 2 // 0 = hard left, 1 = hard right
	gainL := math.Cos(x*math.Pi/2) * elevGain
	gainR := math.Sin(x*math.Pi/2) * elevGain

	srcC := source.NumChannels()
	n := frames
	if sf := source.Frames(); sf < n {
		n = sf
	}
	if df := dest.Frames(); df < n {
		n = df
	}

	if len(dest.Data) < 2 {
		return
	}
	destL, destR := dest.Data[0], dest.Data[1]

	switch {
	case srcC == 1:
		s := source.Data[0]
		for i := 0; i < n; i++ {
			destL[i] = s[i] * gainL
			destR[i] = s[i] * gainR
		}
	case srcC >= 2:
		sl, sr := source.Data[0], source.Data[1]
		for i := 0; i < n; i++ {
			mono := (sl[i] + sr[i]) * 0.5
			destL[i] = mono * gainL
			destR[i] = mono * gainR
		}
	default:
		dest.Zero()
	}
}

// hrtfPanner is a stand-in for true HRTF convolution: it applies the same
// equal-power law as equalPowerPanner, with no inter-aural delay or HRIR
// filtering, enough to exercise the PanningModel dispatch and the node's
// dezippered gain path without pulling in a full HRIR dataset.
type hrtfPanner struct {
	eq equalPowerPanner
}

func (h *hrtfPanner) reset() { h.eq.reset() }

func (h *hrtfPanner) pan(azimuth, elevation float64, source, dest *audiograph.Bus, frames int) {
	h.eq.pan(azimuth, elevation, source, dest, frames)
}
