package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQuantumAdvancesClock(t *testing.T) {
	ctx := newTestContext(t)
	assert.EqualValues(t, 0, ctx.CurrentSampleFrame())

	ctx.RenderQuantum(DefaultFrames)
	assert.EqualValues(t, DefaultFrames, ctx.CurrentSampleFrame())

	ctx.RenderQuantum(DefaultFrames)
	assert.EqualValues(t, 2*DefaultFrames, ctx.CurrentSampleFrame())
}

func TestRenderQuantumPullsDestination(t *testing.T) {
	ctx := newTestContext(t)
	src := &constProcessor{value: 1}
	srcNode := NewNode(ctx, "src", src, 0, []int{2})
	ctx.SetDestination(srcNode)

	bus := ctx.RenderQuantum(DefaultFrames)
	assert.False(t, bus.Silent)
	assert.Equal(t, 1.0, bus.Data[0][0])
}

func TestDeferredDerefDrainsOnNextLockedQuantum(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})

	ctx.lock() // simulate the control thread holding the lock
	a.Release()
	assert.EqualValues(t, 1, a.normalRef) // deref couldn't finish: deferred
	ctx.unlock()

	ctx.sweep()
	assert.EqualValues(t, 0, a.normalRef)
	assert.True(t, a.markedForDeletion)
}

func TestLiveNodesReflectsRegistration(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})

	live := ctx.LiveNodes()
	require.Len(t, live, 1)
	assert.Equal(t, a.UID, live[0])
}

func TestListenerDefaults(t *testing.T) {
	ctx := newTestContext(t)
	l := ctx.Listener()
	assert.Equal(t, 1.0, l.DopplerFactor)
	assert.InDelta(t, 343.3, l.SpeedOfSound, 0.001)

	ctx.SetListenerPosition(Vec3{X: 1, Y: 2, Z: 3})
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, ctx.Listener().Position)
}

func TestCloseWaitsForGoroutines(t *testing.T) {
	ctx := newTestContext(t)
	done := make(chan struct{})
	ctx.Go(func() error {
		close(done)
		return nil
	})
	require.NoError(t, ctx.Close())
	<-done
	assert.True(t, ctx.Closed())
}

func TestConnectAfterCloseIsStateViolation(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{}, 1, []int{1})
	require.NoError(t, ctx.Close())

	err := a.Connect(b, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
	assert.False(t, b.Input(0).IsConnected())
}

func TestConnectParamAfterCloseIsStateViolation(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	p := NewParam(ctx, "p", 0, 0, 1)
	require.NoError(t, ctx.Close())

	err := a.ConnectParam(p, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestDisconnectAfterCloseIsStateViolation(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{}, 1, []int{1})
	require.NoError(t, a.Connect(b, 0, 0))
	require.NoError(t, ctx.Close())

	err := a.Disconnect(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateViolation)
	// the connection made before close survives a rejected post-close Disconnect
	assert.True(t, b.Input(0).IsConnected())
}
