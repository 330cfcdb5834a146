package audiograph

import "math"

// Bus owns one render quantum's worth of multi-channel, non-interleaved PCM
// samples: Data[channel][frame]. Silent is a fast path — when true, callers
// must treat Data as if it were all zero regardless of what's actually
// stored there, and may skip processing it entirely.
type Bus struct {
	Data   [][]float64
	Silent bool
}

// NewBus allocates a Bus with numChannels channels of frames samples each,
// pre-sized so the steady-state render path never allocates.
func NewBus(numChannels, frames int) *Bus {
	data := make([][]float64, numChannels)
	for i := range data {
		data[i] = make([]float64, frames)
	}
	return &Bus{Data: data, Silent: true}
}

// NumChannels returns the channel count.
func (b *Bus) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Frames returns the number of samples per channel.
func (b *Bus) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Zero clears the buffer contents and sets the silent flag. Downstream
// nodes that check Silent don't need the contents to be physically zeroed,
// but zeroing keeps a Bus safe to hand to code that ignores the flag.
func (b *Bus) Zero() {
	for c := range b.Data {
		row := b.Data[c]
		for i := range row {
			row[i] = 0
		}
	}
	b.Silent = true
}

// ClearSilence marks the buffer as carrying real content. It does not
// inspect the samples; the caller (a Processor's Process, which owns its
// output bus's flag) is responsible for having actually produced non-silent
// output.
func (b *Bus) ClearSilence() {
	b.Silent = false
}

// resize grows or shrinks the channel count in place, preserving frame
// count. Only ever called under the graph lock (channel negotiation),
// never from the steady-state render path.
func (b *Bus) resize(numChannels int) {
	frames := b.Frames()
	if numChannels == len(b.Data) {
		return
	}
	data := make([][]float64, numChannels)
	for i := range data {
		if i < len(b.Data) {
			data[i] = b.Data[i]
		} else {
			data[i] = make([]float64, frames)
		}
	}
	b.Data = data
}

// sumInto mixes src into dst, up- or down-mixing src's channel count to
// dst's. A silent src contributes nothing (dst keeps whatever silence state
// it already has going in). Mono sources are splatted to every destination
// channel; a multichannel source mixed into a mono dst is averaged down;
// equal channel counts add in place; any other pairing adds src channel
// c mod src's channel count into dst channel c.
func sumInto(dst *Bus, src *Bus) {
	if src == nil || src.Silent {
		return
	}
	dst.Silent = false
	dstC, srcC := dst.NumChannels(), src.NumChannels()
	frames := dst.Frames()
	if srcF := src.Frames(); srcF < frames {
		frames = srcF
	}
	switch {
	case srcC == dstC:
		for c := 0; c < dstC; c++ {
			d, s := dst.Data[c], src.Data[c]
			for i := 0; i < frames; i++ {
				d[i] += s[i]
			}
		}
	case srcC == 1:
		s := src.Data[0]
		for c := 0; c < dstC; c++ {
			d := dst.Data[c]
			for i := 0; i < frames; i++ {
				d[i] += s[i]
			}
		}
	case dstC == 1:
		d := dst.Data[0]
		for i := 0; i < frames; i++ {
			var sum float64
			for c := 0; c < srcC; c++ {
				sum += src.Data[c][i]
			}
			d[i] += sum / float64(srcC)
		}
	default:
		// Mismatched multichannel layouts: each dst channel c adds src
		// channel c mod srcC, wrapping if dst has more channels than src.
		// Src channels beyond dst's count are not mixed in.
		for c := 0; c < dstC; c++ {
			d := dst.Data[c]
			s := src.Data[c%srcC]
			for i := 0; i < frames; i++ {
				d[i] += s[i]
			}
		}
	}
}

// applyGainRamp multiplies the buffer in place by a per-sample gain ramp of
// the same length as the buffer's frame count (see Param.Render).
func applyGainRamp(b *Bus, gain []float64) {
	if b.Silent {
		return
	}
	for c := range b.Data {
		row := b.Data[c]
		n := len(row)
		if len(gain) < n {
			n = len(gain)
		}
		for i := 0; i < n; i++ {
			row[i] *= gain[i]
		}
	}
}

// IsSilentOrZero reports true for a nil bus, a Silent bus, or a bus whose
// samples happen to all be exactly zero (used by tests asserting the
// silence-propagation invariant without relying on the flag alone).
func IsSilentOrZero(b *Bus) bool {
	if b == nil || b.Silent {
		return true
	}
	for _, row := range b.Data {
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

func fixNaN(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
