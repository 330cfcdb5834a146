package audiograph

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultFrames is the render quantum F: the fixed frame count processed
// atomically per node per tick (§3).
const DefaultFrames = 128

// Listener holds the AudioListener state the spatializer example (package
// panner) reads once per block: position, orientation, up vector,
// velocity, and the Doppler/speed-of-sound constants.
type Listener struct {
	Position    Vec3
	Orientation Vec3
	Up          Vec3
	Velocity    Vec3

	DopplerFactor float64
	SpeedOfSound  float64
}

type deferredDerefEntry struct {
	node *Node
	rt   refType
}

// Context owns the graph: the destination node, the current render-quantum
// clock, the graph lock, the listener, and the bookkeeping needed to move
// ref-count consequences from the audio thread to the control thread when
// the audio thread can't acquire the lock without blocking (§4.5, §5).
type Context struct {
	id         uuid.UUID
	sampleRate int

	mu sync.Mutex // the graph lock: control thread blocks on it, audio thread try-locks it

	currentSampleFrame int64
	connectionCount    int64 // atomic

	destination *Node

	nodesMu sync.Mutex
	nodes   map[UID]weak.Pointer[Node]

	deferredMu sync.Mutex
	deferred   []deferredDerefEntry
	deleted    []UID // UIDs marked for deletion, pruned by the next sweep; for TestableProperty #3

	listenerMu sync.RWMutex
	listener   Listener

	audioThreadActive atomic.Bool

	stateViolated atomic.Bool

	log    logrus.FieldLogger
	group  *errgroup.Group
	closed atomic.Bool
}

// Option configures a Context at construction time (WithLogger,
// WithErrorReporting).
type Option func(*Context) error

// WithLogger overrides the context's default logrus logger, e.g. with a
// test logger writing to a buffer.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Context) error {
		c.log = log
		return nil
	}
}

// NewContext creates a Context at the given sample rate, with its graph
// initially empty and no destination; the caller assigns the node
// RenderQuantum pulls via SetDestination.
func NewContext(sampleRate int, options ...Option) (*Context, error) {
	c := &Context{
		id:         uuid.New(),
		sampleRate: sampleRate,
		nodes:      make(map[UID]weak.Pointer[Node]),
		listener: Listener{
			Orientation:   Vec3{X: 0, Y: 0, Z: -1},
			Up:            Vec3{X: 0, Y: 1, Z: 0},
			DopplerFactor: 1,
			SpeedOfSound:  343.3,
		},
	}
	c.log = newLogger()
	c.group = new(errgroup.Group)
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SampleRate returns the context's fixed sample rate.
func (c *Context) SampleRate() int { return c.sampleRate }

// ID identifies this context uniquely among any others in the process; it
// is only ever compared for equality (cross-context Connect rejection) and
// is never DSP-visible.
func (c *Context) ID() uuid.UUID { return c.id }

// currentTime is current_sample_frame / sample_rate (§4.5).
func (c *Context) currentTime() float64 {
	return float64(atomic.LoadInt64(&c.currentSampleFrame)) / float64(c.sampleRate)
}

// CurrentSampleFrame returns the monotonically increasing frame counter.
func (c *Context) CurrentSampleFrame() int64 {
	return atomic.LoadInt64(&c.currentSampleFrame)
}

// ConnectionCount returns the monotonic counter bumped on every successful
// connect; PannerNode (and any similar topology observer) compares this
// against its own last-seen value to detect graph changes cheaply (§4.6).
func (c *Context) ConnectionCount() int64 {
	return atomic.LoadInt64(&c.connectionCount)
}

func (c *Context) bumpConnectionCount() {
	atomic.AddInt64(&c.connectionCount, 1)
}

// lock acquires the graph lock, blocking. Only the control thread should
// call this directly; RenderQuantum uses tryLock.
func (c *Context) lock() { c.mu.Lock() }

func (c *Context) unlock() { c.mu.Unlock() }

// tryLock attempts to acquire the graph lock without blocking, as the audio
// thread must (§4.5, §5).
func (c *Context) tryLock() bool { return c.mu.TryLock() }

// assertControlThread panics if called while RenderQuantum is in progress.
// This replaces the original's isMainThread() assertion with a
// Context-scoped marker (see REDESIGN FLAGS): a programmer error, not a
// Kind this package returns to callers.
func (c *Context) assertControlThread() {
	if c.audioThreadActive.Load() {
		panic("audiograph: topology mutated from the audio thread")
	}
}

func (c *Context) registerNode(n *Node) {
	c.nodesMu.Lock()
	defer c.nodesMu.Unlock()
	c.nodes[n.UID] = weak.Make(n)
}

// LiveNodes returns the UIDs of nodes that have not yet been swept off the
// deletion list. It's a diagnostic/testing accessor, not part of the
// render-time hot path.
func (c *Context) LiveNodes() []UID {
	c.nodesMu.Lock()
	defer c.nodesMu.Unlock()
	live := make([]UID, 0, len(c.nodes))
	for uid, wp := range c.nodes {
		if wp.Value() != nil {
			live = append(live, uid)
		}
	}
	return live
}

// markForDeletion places n on the deletion list. Must be called with the
// graph lock held (always true: it's only called from Node.finishDeref).
func (c *Context) markForDeletion(n *Node) {
	c.deleted = append(c.deleted, n.UID)
}

// deferDeref queues a ref-count decrement the audio thread couldn't apply
// immediately because it failed to acquire the graph lock. The control
// thread (or a later quantum that does acquire) completes it via sweep.
func (c *Context) deferDeref(n *Node, rt refType) {
	c.deferredMu.Lock()
	c.deferred = append(c.deferred, deferredDerefEntry{node: n, rt: rt})
	c.deferredMu.Unlock()
}

// sweep drains the deferred-deref queue and prunes swept nodes from the
// live-node registry. Must be called with the graph lock held.
func (c *Context) sweep() {
	c.deferredMu.Lock()
	pending := c.deferred
	c.deferred = nil
	c.deferredMu.Unlock()

	for _, e := range pending {
		e.node.finishDeref(e.rt)
	}

	if len(c.deleted) == 0 {
		return
	}
	c.nodesMu.Lock()
	for _, uid := range c.deleted {
		delete(c.nodes, uid)
	}
	c.nodesMu.Unlock()
	c.deleted = c.deleted[:0]
}

// DeletedCount reports how many nodes are on the deletion list waiting for
// the next sweep (sweep empties the list); tests use this to pin
// TestableProperty #3 (exactly-once deletion).
func (c *Context) DeletedCount() int {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	return len(c.deleted)
}

// SetListener replaces the listener state wholesale.
func (c *Context) SetListener(l Listener) {
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

// Listener returns a copy of the current listener state, safe to call from
// either thread.
func (c *Context) Listener() Listener {
	c.listenerMu.RLock()
	defer c.listenerMu.RUnlock()
	return c.listener
}

// SetListenerPosition, SetListenerOrientation, SetListenerUp,
// SetListenerVelocity, SetListenerDopplerFactor and SetListenerSpeedOfSound
// are the individual listener mutators named in §6.
func (c *Context) SetListenerPosition(p Vec3) {
	c.listenerMu.Lock()
	c.listener.Position = p
	c.listenerMu.Unlock()
}

func (c *Context) SetListenerOrientation(o Vec3) {
	c.listenerMu.Lock()
	c.listener.Orientation = o
	c.listenerMu.Unlock()
}

func (c *Context) SetListenerUp(u Vec3) {
	c.listenerMu.Lock()
	c.listener.Up = u
	c.listenerMu.Unlock()
}

func (c *Context) SetListenerVelocity(v Vec3) {
	c.listenerMu.Lock()
	c.listener.Velocity = v
	c.listenerMu.Unlock()
}

func (c *Context) SetListenerDopplerFactor(f float64) {
	c.listenerMu.Lock()
	c.listener.DopplerFactor = f
	c.listenerMu.Unlock()
}

func (c *Context) SetListenerSpeedOfSound(s float64) {
	c.listenerMu.Lock()
	c.listener.SpeedOfSound = s
	c.listenerMu.Unlock()
}

// reportStateViolation surfaces a StateViolation error exactly once per
// context, per §7's "surfaced once" policy, logging at Error level.
func (c *Context) reportStateViolation(op string) error {
	if c.stateViolated.CompareAndSwap(false, true) {
		c.log.WithField("op", op).Error("audiograph: operation attempted after context close")
	}
	return newError(op, KindStateViolation, "context is closed")
}

// SetDestination assigns the graph's root node. Connect/Disconnect on any
// node still work regardless; RenderQuantum always pulls this node.
func (c *Context) SetDestination(n *Node) {
	c.destination = n
}

// RenderQuantum is the audio thread's entry point, normally invoked by a
// device callback once per period (F/sample_rate). It tries the graph lock
// for bookkeeping (never blocks), pulls the destination node, and advances
// the sample clock by exactly frames.
func (c *Context) RenderQuantum(frames int) *Bus {
	c.audioThreadActive.Store(true)
	defer c.audioThreadActive.Store(false)

	if c.tryLock() {
		c.sweep()
		c.unlock()
	}

	if c.destination == nil {
		atomic.AddInt64(&c.currentSampleFrame, int64(frames))
		return NewBus(2, frames)
	}

	c.destination.processIfNecessary(c, frames)
	atomic.AddInt64(&c.currentSampleFrame, int64(frames))

	if len(c.destination.outputs) == 0 {
		return NewBus(2, frames)
	}
	return c.destination.outputs[0].bus
}

// Go runs fn under the context's errgroup, so Close can wait for it.
func (c *Context) Go(fn func() error) {
	c.group.Go(fn)
}

// Close marks the context closed (further topology mutation is a no-op
// StateViolation, §7) and waits for any goroutines started via Go.
func (c *Context) Close() error {
	c.closed.Store(true)
	return c.group.Wait()
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool { return c.closed.Load() }
