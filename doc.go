/*
Package audiograph implements a real-time audio processing graph.

Concept

Client code builds a directed graph of Nodes (sources, effects, analyzers,
sinks) connected through typed ports. A Context pulls the graph's
destination node once per render quantum; each Node pulls its inputs in
turn, so data flows from sources to sinks even though the call chain runs
the other way.

The graph is mutated from one goroutine (the "control thread": Connect,
Disconnect, node creation, host-side release) while a second goroutine (the
"audio thread": Context.RenderQuantum, normally driven by a device callback)
renders it. Node reference counts are atomic so both sides can touch them
without a lock; structural consequences of a count reaching zero (disabling
outputs, marking a node for deletion) only ever run while the graph lock is
held, deferred to the next quantum boundary if the audio thread can't
acquire it without blocking.

Components

	Bus         a block of multi-channel PCM samples for one render quantum
	Param       a smoothed, optionally audio-rate-modulated scalar
	NodeOutput  one output port, fed from a Node's Process
	NodeInput   one input port, summing its connected outputs
	Node        lifecycle, ref counts, per-quantum dispatch
	Context     the graph's clock, lock, listener and node bookkeeping

A worked example, package panner, spatializes a mono or stereo source
(position, orientation, velocity) into the listener's frame, including
distance attenuation, cone gain and Doppler pitch.

DSP kernels for individual effects, device I/O and file decoding are
deliberately out of this package's scope; packages device, source/wav,
source/mp3 and midi show how those collaborators plug into the interfaces
this package specifies, without this package importing any of them.
*/
package audiograph
