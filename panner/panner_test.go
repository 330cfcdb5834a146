package panner

import (
	"testing"

	"github.com/dudk/audiograph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *audiograph.Context {
	t.Helper()
	ctx, err := audiograph.NewContext(48000)
	require.NoError(t, err)
	return ctx
}

func TestSetPanningModelRejectsSoundField(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	err := p.SetPanningModel(SoundField)
	require.Error(t, err)
	assert.ErrorIs(t, err, audiograph.ErrNotSupported)
	assert.Equal(t, EqualPower, p.panningModel) // unchanged on rejection
}

func TestSetPanningModelIdempotent(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.Initialize())

	require.NoError(t, p.SetPanningModel(EqualPower))
	first := p.pan
	require.NoError(t, p.SetPanningModel(EqualPower))
	assert.Same(t, first, p.pan) // repeating the same model must not reallocate the strategy
}

func TestSetDistanceModelRejectsUnknown(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	err := p.SetDistanceModel(DistanceModel(99))
	require.Error(t, err)
	assert.ErrorIs(t, err, audiograph.ErrNotSupported)
}

func TestAzimuthElevationFrontCenterIsZero(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -1}) // straight ahead of the default listener

	az, el := p.azimuthElevation(ctx.Listener())
	assert.InDelta(t, 0, az, 0.001)
	assert.InDelta(t, 0, el, 0.001)
}

func TestAzimuthElevationHardRightIsNinety(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(audiograph.Vec3{X: 1, Y: 0, Z: 0}) // due right of the default listener orientation

	az, _ := p.azimuthElevation(ctx.Listener())
	assert.InDelta(t, 90, az, 0.001)
}

func TestAzimuthElevationDegenerateAtListenerPosition(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(ctx.Listener().Position) // source exactly at the listener: undefined direction

	az, el := p.azimuthElevation(ctx.Listener())
	assert.Equal(t, 0.0, az)
	assert.Equal(t, 0.0, el)
}

func TestDopplerRateIsUnityWithoutVelocity(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -5})

	assert.Equal(t, 1.0, p.dopplerRate())
}

func TestDopplerRateClampsExtremeVelocity(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -1})
	// a source racing away from the listener far faster than sound travels
	// must clamp rather than blow up or invert.
	p.SetVelocity(audiograph.Vec3{X: 0, Y: 0, Z: -100000})

	rate := p.dopplerRate()
	assert.LessOrEqual(t, rate, dopplerShiftMax)
	assert.GreaterOrEqual(t, rate, dopplerShiftMin)
}

func TestDopplerRateUnityWhenFactorDisabled(t *testing.T) {
	ctx := newTestContext(t)
	ctx.SetListenerDopplerFactor(0)
	p := New(ctx)
	p.SetVelocity(audiograph.Vec3{X: 0, Y: 0, Z: -10})

	assert.Equal(t, 1.0, p.dopplerRate())
}

func TestDistanceGainLinearAtRefDistanceIsUnity(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.SetDistanceModel(Linear))
	p.SetDistanceParams(1, 100, 1)

	assert.InDelta(t, 1.0, p.distanceGain(1), 1e-9)
}

func TestDistanceGainLinearDecaysToZeroAtMaxDistance(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.SetDistanceModel(Linear))
	p.SetDistanceParams(1, 101, 1)

	assert.InDelta(t, 0.0, p.distanceGain(101), 1e-9)
}

func TestDistanceGainInverseDecreasesWithDistance(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.SetDistanceModel(Inverse))
	p.SetDistanceParams(1, 10000, 1)

	near := p.distanceGain(1)
	far := p.distanceGain(10)
	assert.Greater(t, near, far)
}

func TestDistanceGainExponentialDecreasesWithDistance(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.SetDistanceModel(Exponential))
	p.SetDistanceParams(1, 10000, 1)

	near := p.distanceGain(1)
	far := p.distanceGain(10)
	assert.Greater(t, near, far)
}

func TestConeGainInsideInnerAngleIsUnity(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetOrientation(audiograph.Vec3{X: 0, Y: 0, Z: 1})
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -1}) // listener at origin is dead ahead of the cone
	p.SetCone(90, 180, 0.5)

	assert.InDelta(t, 1.0, p.coneGain(ctx.Listener()), 1e-9)
}

func TestConeGainOutsideOuterAngleIsOuterGain(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetOrientation(audiograph.Vec3{X: 0, Y: 0, Z: -1}) // cone points away from the listener
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -1})
	p.SetCone(10, 20, 0.3)

	assert.InDelta(t, 0.3, p.coneGain(ctx.Listener()), 1e-9)
}

func TestConeGainDefaultIsOmnidirectional(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	p.SetPosition(audiograph.Vec3{X: 5, Y: 5, Z: 5})

	assert.Equal(t, 1.0, p.coneGain(ctx.Listener()))
}

func TestProcessSpatializesMonoSourceIntoStereo(t *testing.T) {
	ctx := newTestContext(t)
	src := audiograph.NewNode(ctx, "src", &constSource{value: 1}, 0, []int{1})
	p := New(ctx)
	require.NoError(t, src.Connect(p.Underlying(), 0, 0))
	p.SetPosition(audiograph.Vec3{X: 0, Y: 0, Z: -1})

	ctx.SetDestination(p.Underlying())
	bus := ctx.RenderQuantum(audiograph.DefaultFrames)

	assert.False(t, bus.Silent)
	assert.Equal(t, 2, bus.NumChannels())
}

func TestProcessZerosWhenUnconnected(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.Initialize())

	ctx.SetDestination(p.Underlying())
	bus := ctx.RenderQuantum(audiograph.DefaultFrames)

	assert.True(t, audiograph.IsSilentOrZero(bus))
}

func TestResetForcesGainToSnapInsteadOfRamp(t *testing.T) {
	ctx := newTestContext(t)
	p := New(ctx)
	require.NoError(t, p.Initialize())
	p.lastTotalGain = 0.1
	p.Reset()
	assert.Equal(t, -1.0, p.lastTotalGain)
}

// constSource is a minimal Processor used to feed the panner a fixed,
// always-audible signal.
type constSource struct {
	value float64
}

func (c *constSource) Process(ctx *audiograph.Context, n *audiograph.Node, frames int) error {
	out := n.Output(0)
	for _, row := range out.Bus().Data {
		for i := range row {
			row[i] = c.value
		}
	}
	out.Bus().ClearSilence()
	return nil
}

func (c *constSource) LatencyTime() float64 { return 0 }
func (c *constSource) TailTime() float64    { return 0 }
func (c *constSource) Reset()               {}
