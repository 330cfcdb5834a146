package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputPullMixesConnectedOutputs(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{value: 1}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{value: 2}, 0, []int{1})
	sink := NewNode(ctx, "sink", &constProcessor{}, 2, []int{1})

	require.NoError(t, a.Connect(sink, 0, 0))
	require.NoError(t, b.Connect(sink, 0, 0))

	sink.Input(0).pull(ctx, DefaultFrames)

	bus := sink.Input(0).Bus()
	assert.False(t, bus.Silent)
	assert.Equal(t, 3.0, bus.Data[0][0])
}

func TestInputPullSkipsDisabledOutputs(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{value: 1}, 0, []int{1})
	sink := NewNode(ctx, "sink", &constProcessor{}, 1, []int{1})

	require.NoError(t, a.Connect(sink, 0, 0))
	a.Output(0).disable()

	sink.Input(0).pull(ctx, DefaultFrames)

	bus := sink.Input(0).Bus()
	assert.True(t, bus.Silent)
}

func TestInputUnconnectedIsSilent(t *testing.T) {
	ctx := newTestContext(t)
	sink := NewNode(ctx, "sink", &constProcessor{}, 1, []int{1})

	sink.Input(0).pull(ctx, DefaultFrames)

	assert.True(t, sink.Input(0).Bus().Silent)
	assert.False(t, sink.Input(0).IsConnected())
}

func TestInputChannelCountNegotiation(t *testing.T) {
	ctx := newTestContext(t)
	mono := NewNode(ctx, "mono", &constProcessor{}, 0, []int{1})
	stereo := NewNode(ctx, "stereo", &constProcessor{}, 0, []int{2})
	sink := NewNode(ctx, "sink", &constProcessor{}, 1, []int{1})

	require.NoError(t, mono.Connect(sink, 0, 0))
	assert.Equal(t, 1, sink.Input(0).Bus().NumChannels())

	require.NoError(t, stereo.Connect(sink, 0, 0))
	assert.Equal(t, 2, sink.Input(0).Bus().NumChannels())
}
