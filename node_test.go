package audiograph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constProcessor is a minimal Processor used throughout the test suite: it
// writes a fixed value to every output sample and counts how many times
// Process actually ran, so tests can assert fan-out memoization.
type constProcessor struct {
	value     float64
	processed int32
	tail      float64
}

func (c *constProcessor) Process(ctx *Context, n *Node, frames int) error {
	atomic.AddInt32(&c.processed, 1)
	for _, out := range n.outputs {
		for _, row := range out.bus.Data {
			for i := range row {
				row[i] = c.value
			}
		}
		out.bus.Silent = false
	}
	return nil
}

func (c *constProcessor) LatencyTime() float64 { return 0 }
func (c *constProcessor) TailTime() float64    { return c.tail }
func (c *constProcessor) Reset()               {}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(48000)
	require.NoError(t, err)
	return ctx
}

func TestNodeFanOutMemoization(t *testing.T) {
	ctx := newTestContext(t)

	src := &constProcessor{value: 1}
	srcNode := NewNode(ctx, "const", src, 0, []int{1})

	sinkA := &constProcessor{value: 0}
	sinkNodeA := NewNode(ctx, "sinkA", sinkA, 1, []int{1})
	sinkB := &constProcessor{value: 0}
	sinkNodeB := NewNode(ctx, "sinkB", sinkB, 1, []int{1})

	require.NoError(t, srcNode.Connect(sinkNodeA, 0, 0))
	require.NoError(t, srcNode.Connect(sinkNodeB, 0, 0))

	sinkNodeA.processIfNecessary(ctx, DefaultFrames)
	sinkNodeB.processIfNecessary(ctx, DefaultFrames)

	assert.EqualValues(t, 1, atomic.LoadInt32(&src.processed))
}

func TestNodeReprocessesNextQuantum(t *testing.T) {
	ctx := newTestContext(t)
	src := &constProcessor{value: 1}
	srcNode := NewNode(ctx, "const", src, 0, []int{1})

	srcNode.processIfNecessary(ctx, DefaultFrames)
	atomic.AddInt64(&ctx.currentSampleFrame, DefaultFrames)
	srcNode.processIfNecessary(ctx, DefaultFrames)

	assert.EqualValues(t, 2, atomic.LoadInt32(&src.processed))
}

func TestConnectRejectsBadIndices(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{}, 1, []int{1})

	err := a.Connect(b, 5, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexSize)

	err = a.Connect(b, 0, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexSize)
}

func TestConnectRejectsCrossContext(t *testing.T) {
	ctx1 := newTestContext(t)
	ctx2 := newTestContext(t)
	a := NewNode(ctx1, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx2, "b", &constProcessor{}, 1, []int{1})

	err := a.Connect(b, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestDisconnectAllReleasesConnectionRef(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{}, 1, []int{1})

	require.NoError(t, a.Connect(b, 0, 0))
	// b's input just gained a feed, so it's b's connectionRef that moves,
	// not a's: the receiving node is what an inbound connection keeps alive.
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.connectionRef))

	require.NoError(t, a.Disconnect(0))
	assert.EqualValues(t, 0, atomic.LoadInt32(&b.connectionRef))
	assert.False(t, b.Input(0).IsConnected())
}

func TestReleaseToZeroMarksForDeletion(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})

	a.Release()
	assert.True(t, a.markedForDeletion)
	assert.Equal(t, 1, ctx.DeletedCount())
}

// TestDisableOffByOne pins the deliberately-replicated off-by-one rule: a
// node disables ALL of its outputs once its own connectionRef (the count of
// its live inbound connections) drops to <= 1, even with one inbound
// connection still standing.
func TestDisableOffByOne(t *testing.T) {
	ctx := newTestContext(t)
	s1 := NewNode(ctx, "s1", &constProcessor{}, 0, []int{1})
	s2 := NewNode(ctx, "s2", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{}, 2, []int{1})
	dest := NewNode(ctx, "dest", &constProcessor{}, 1, []int{1})

	require.NoError(t, s1.Connect(b, 0, 0))
	require.NoError(t, s2.Connect(b, 0, 1))
	require.NoError(t, b.Connect(dest, 0, 0))
	assert.EqualValues(t, 2, atomic.LoadInt32(&b.connectionRef))
	assert.False(t, b.disabled)

	require.NoError(t, s1.Disconnect(0))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.connectionRef))
	// b still has one live inbound connection (from s2), yet
	// disableOutputsIfNecessary's <= 1 threshold (not == 0) disables its
	// outputs anyway, severing b -> dest from the rendering set.
	assert.True(t, b.disabled)
	assert.EqualValues(t, 0, b.Output(0).NumRenderingConnections())
}

func TestTailTimeKeepsOutputsEnabled(t *testing.T) {
	ctx := newTestContext(t)
	a := NewNode(ctx, "a", &constProcessor{}, 0, []int{1})
	b := NewNode(ctx, "b", &constProcessor{tail: 1}, 1, []int{1})

	require.NoError(t, a.Connect(b, 0, 0))
	require.NoError(t, a.Disconnect(0))

	assert.False(t, b.disabled)
}

func TestSilencePropagationNeverGatesGenerator(t *testing.T) {
	ctx := newTestContext(t)
	src := &constProcessor{value: 0, tail: 0}
	srcNode := NewNode(ctx, "src", src, 0, []int{1})

	srcNode.processIfNecessary(ctx, DefaultFrames)
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.processed))

	// A generator node has no inputs to report silence, so it always
	// reaches Process regardless of how much time has passed.
	atomic.AddInt64(&ctx.currentSampleFrame, DefaultFrames)
	srcNode.processIfNecessary(ctx, DefaultFrames)
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.processed))
}
