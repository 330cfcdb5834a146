// Package mp3 adapts an MP3 file to an audiograph Source node using
// go-mp3, which exposes the decoded stream as 16-bit little-endian stereo
// PCM bytes.
package mp3

import (
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/dudk/audiograph"
)

const channels = 2

// Node is a file-backed MP3 source: zero inputs, one stereo output.
type Node struct {
	n   *audiograph.Node
	dec *gomp3.Decoder
	f   *os.File

	buf []byte
	eof bool
}

// Open decodes the MP3 header at path and registers a source node with ctx.
func Open(ctx *audiograph.Context, path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	src := &Node{
		dec: dec,
		f:   f,
		buf: make([]byte, audiograph.DefaultFrames*channels*2),
	}
	src.n = audiograph.NewNode(ctx, "Source(mp3)", src, 0, []int{channels})
	return src, nil
}

// Underlying returns the graph node, for Connect/Disconnect.
func (n *Node) Underlying() *audiograph.Node { return n.n }

// SampleRate reports the MP3's decoded sample rate; a context built to
// render this source should be created with a matching rate since this
// package performs no resampling.
func (n *Node) SampleRate() int { return n.dec.SampleRate() }

// LatencyTime implements audiograph.Processor.
func (n *Node) LatencyTime() float64 { return 0 }

// TailTime implements audiograph.Processor: nothing plays after EOF.
func (n *Node) TailTime() float64 { return 0 }

// Reset implements audiograph.Processor; seeking is out of scope.
func (n *Node) Reset() {}

// Process decodes up to frames stereo samples into node's output bus,
// converting the 16-bit interleaved PCM go-mp3 hands back into [-1, 1]
// float64, per the byte layout ik5/audpbx's mp3 decoder uses.
func (n *Node) Process(ctx *audiograph.Context, node *audiograph.Node, frames int) error {
	out := node.Output(0).Bus()
	if n.eof {
		out.Zero()
		return nil
	}

	bytesNeeded := frames * channels * 2
	if len(n.buf) < bytesNeeded {
		n.buf = make([]byte, bytesNeeded)
	}
	buf := n.buf[:bytesNeeded]

	read, err := n.dec.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if err == io.EOF || read == 0 {
		n.eof = true
	}

	samples := read / 2 // int16 samples across both channels, interleaved
	framesRead := samples / channels
	if framesRead < frames {
		n.eof = true
	}

	for c := 0; c < channels; c++ {
		row := out.Data[c]
		for i := 0; i < framesRead; i++ {
			idx := (i*channels + c) * 2
			low := uint16(buf[idx])
			high := uint16(buf[idx+1])
			v := int16(low | (high << 8))
			row[i] = float64(v) / 32768.0
		}
		for i := framesRead; i < frames; i++ {
			row[i] = 0
		}
	}
	if framesRead > 0 {
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
