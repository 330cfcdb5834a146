// Package device drives an audiograph.Context from a real output device via
// PortAudio, interleaving render quanta into the callback it expects.
package device

import (
	"github.com/gordonklaus/portaudio"

	"github.com/dudk/audiograph"
)

// Sink owns the PortAudio stream and pulls one render quantum from a
// Context per callback, interleaving its planar output into PortAudio's
// float32 buffer.
type Sink struct {
	ctx         *audiograph.Context
	stream      *portaudio.Stream
	buf         []float32
	numChannels int
	frames      int
}

// NewSink constructs a Sink bound to ctx. Open must be called before use.
func NewSink(ctx *audiograph.Context, numChannels int) *Sink {
	return &Sink{
		ctx:         ctx,
		numChannels: numChannels,
		frames:      audiograph.DefaultFrames,
	}
}

// Open initializes PortAudio and starts the default output stream at the
// context's sample rate and the fixed render quantum.
func (s *Sink) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	s.buf = make([]float32, s.frames*s.numChannels)
	stream, err := portaudio.OpenDefaultStream(0, s.numChannels, float64(s.ctx.SampleRate()), s.frames, s.callback)
	if err != nil {
		return err
	}
	s.stream = stream
	return s.stream.Start()
}

// callback is invoked by PortAudio on its own thread; it is the audio
// thread for the purposes of Context's locking discipline (§5): it never
// blocks, and RenderQuantum's try-lock degrades gracefully if the control
// thread currently holds the graph lock.
func (s *Sink) callback(out []float32) {
	bus := s.ctx.RenderQuantum(s.frames)
	numChannels := bus.NumChannels()
	if numChannels == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	frames := bus.Frames()
	for i := 0; i < frames; i++ {
		for c := 0; c < s.numChannels; c++ {
			srcChannel := c
			if srcChannel >= numChannels {
				srcChannel = numChannels - 1
			}
			out[i*s.numChannels+c] = float32(bus.Data[srcChannel][i])
		}
	}
}

// Close stops and terminates the PortAudio stream.
func (s *Sink) Close() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
