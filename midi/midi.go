// Package midi bridges incoming MIDI Control Change messages to
// audiograph.Param.SetTarget calls, so a hardware controller can drive any
// node parameter (gain, pan position, cutoff, ...) live.
package midi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/dudk/audiograph"
)

// Binding maps one MIDI CC number (0-127) on one channel to a Param. Value
// is scaled linearly from the CC's 0-127 range into [Param.Min, Param.Max].
type Binding struct {
	Channel    uint8
	Controller uint8
	Param      *audiograph.Param
}

// Bridge listens to a MIDI input port and applies each CC message matching
// a registered Binding to its Param, on the control thread (SetTarget is an
// atomic store, safe to call from this callback without the graph lock).
type Bridge struct {
	bindings []Binding
	stop     func()
}

// NewBridge constructs a Bridge with no bindings yet; call Bind before Open.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Bind registers a CC-to-param mapping.
func (b *Bridge) Bind(channel, controller uint8, param *audiograph.Param) {
	b.bindings = append(b.bindings, Binding{Channel: channel, Controller: controller, Param: param})
}

// Open finds the named MIDI input port and starts listening, applying
// bound CC messages to their Params as they arrive.
func (b *Bridge) Open(portName string) error {
	in, err := midi.FindInPort(portName)
	if err != nil {
		return fmt.Errorf("midi: find input port %q: %w", portName, err)
	}

	stop, err := midi.ListenTo(in, b.handle)
	if err != nil {
		return fmt.Errorf("midi: listen: %w", err)
	}
	b.stop = stop
	return nil
}

func (b *Bridge) handle(msg midi.Message, _ int32) {
	var channel, controller, value uint8
	if !msg.GetControlChange(&channel, &controller, &value) {
		return
	}
	for _, bind := range b.bindings {
		if bind.Channel != channel || bind.Controller != controller {
			continue
		}
		p := bind.Param
		t := p.Min + (p.Max-p.Min)*float64(value)/127.0
		p.SetTarget(t)
	}
}

// Close stops listening.
func (b *Bridge) Close() {
	if b.stop != nil {
		b.stop()
	}
}
