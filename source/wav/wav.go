// Package wav adapts a WAV file to an audiograph Source node: a Processor
// with no inputs that fills its output bus by decoding PCM frames one
// render quantum at a time.
package wav

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dudk/audiograph"
)

// Node is a file-backed source. It has zero inputs and one output whose
// channel count matches the decoded file.
type Node struct {
	n   *audiograph.Node
	dec *wav.Decoder
	f   *os.File

	channels    int
	dopplerRate float64

	eof bool
	buf *audio.IntBuffer

	// queue holds decoded-but-not-yet-consumed samples, one row per
	// channel, and pos is the fractional read position into it. Both exist
	// to support playback at dopplerRate != 1 (a PannerNode-driven pitch
	// shift) via linear-interpolated resampling, since a render quantum's
	// worth of output may need a non-integer number of source frames.
	queue [][]float64
	pos   float64
}

// Open decodes the WAV header at path and registers a source node with ctx.
// The file stays open for streaming reads until Close is called.
func Open(ctx *audiograph.Context, path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, audiograph.ErrSyntax
	}
	dec.ReadInfo()

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}

	src := &Node{
		dec:         dec,
		f:           f,
		channels:    channels,
		dopplerRate: 1,
	}
	src.n = audiograph.NewNode(ctx, "Source(wav)", src, 0, []int{channels})
	src.buf = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, audiograph.DefaultFrames*channels),
	}
	src.queue = make([][]float64, channels)
	return src, nil
}

// Underlying returns the graph node, for Connect/Disconnect.
func (n *Node) Underlying() *audiograph.Node { return n.n }

// SetDopplerRate implements audiograph.DopplerReceiver: a connected
// PannerNode adjusts our effective playback rate for pitch shifting.
// Process resamples by linear interpolation; true band-limited resampling
// is out of scope.
func (n *Node) SetDopplerRate(rate float64) {
	if rate <= 0 {
		rate = 1
	}
	n.dopplerRate = rate
}

// LatencyTime implements audiograph.Processor.
func (n *Node) LatencyTime() float64 { return 0 }

// TailTime implements audiograph.Processor: a finished file produces
// silence forever after, with no further tail.
func (n *Node) TailTime() float64 { return 0 }

// Reset implements audiograph.Processor: rewinding is not supported
// mid-flight (§ non-goals), so Reset is a no-op; eof and the queued samples
// are left as they are.
func (n *Node) Reset() {}

// decodeMore pulls another PCM buffer's worth of frames from the file and
// appends them to the per-channel queue, scaled to [-1, 1].
func (n *Node) decodeMore() error {
	read, err := n.dec.PCMBuffer(n.buf)
	if err != nil && err != io.EOF {
		return err
	}
	framesRead := read / n.channels
	if framesRead == 0 {
		n.eof = true
		return nil
	}

	scale := 1.0 / 32768.0
	if n.buf.SourceBitDepth > 0 {
		scale = 1.0 / float64(int(1)<<(n.buf.SourceBitDepth-1))
	}
	for c := 0; c < n.channels; c++ {
		for i := 0; i < framesRead; i++ {
			n.queue[c] = append(n.queue[c], float64(n.buf.Data[i*n.channels+c])*scale)
		}
	}
	if err == io.EOF {
		n.eof = true
	}
	return nil
}

// Process produces frames samples per channel, resampling the decoded
// stream by n.dopplerRate via linear interpolation, and zero-pads once the
// file is exhausted and the queue runs dry.
func (n *Node) Process(ctx *audiograph.Context, node *audiograph.Node, frames int) error {
	out := node.Output(0).Bus()

	needed := int(n.pos+float64(frames)*n.dopplerRate) + 2
	for !n.eof && len(n.queue[0]) < needed {
		if err := n.decodeMore(); err != nil {
			return err
		}
	}

	wroteAny := false
	for c := 0; c < n.channels; c++ {
		row := out.Data[c]
		q := n.queue[c]
		pos := n.pos
		for i := 0; i < frames; i++ {
			i0 := int(pos)
			if i0+1 >= len(q) {
				row[i] = 0
				continue
			}
			frac := pos - float64(i0)
			row[i] = q[i0]*(1-frac) + q[i0+1]*frac
			wroteAny = true
			pos += n.dopplerRate
		}
	}

	consumed := int(n.pos + float64(frames)*n.dopplerRate)
	n.pos = n.pos + float64(frames)*n.dopplerRate - float64(consumed)
	for c := range n.queue {
		q := n.queue[c]
		if consumed > len(q) {
			consumed = len(q)
		}
		n.queue[c] = append(q[:0], q[consumed:]...)
	}

	if wroteAny {
		out.ClearSilence()
	} else {
		out.Zero()
	}
	return nil
}

// Close releases the underlying file handle.
func (n *Node) Close() error {
	return n.f.Close()
}
