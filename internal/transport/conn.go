package transport

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/ratlink/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultFrameBuffer = 64
	monitorCloseWait   = 5 * time.Second
)

// Conn is the state machine shared by every transport. It owns the delivery channels
// and enforces Idle -> Connecting -> Connected -> {Disconnected, Error}, with terminal
// states final for the instance.
//
// A transport embeds *Conn and supplies three things: the release function for its
// resource (attach), a blocking read function (connected), and a classifier for clean
// remote closes.
type Conn struct {
	id        string
	transport string
	log       zerolog.Logger
	isClean   func(error) bool

	mu            sync.Mutex
	state         State
	err           error
	readerStarted bool
	release       func() error
	openCancel    context.CancelFunc
	monitorCfg    *MonitorConfig
	monitor       *Monitor

	frames  chan []byte
	states  chan StateChange
	done    chan struct{}
	drained chan struct{}

	drainOnce   sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

func newConn(transport string, o options) *Conn {
	id := uuid.NewString()
	buf := o.frameBuffer
	if buf <= 0 {
		buf = defaultFrameBuffer
	}
	return &Conn{
		id:         id,
		transport:  transport,
		log:        observability.Component("transport").With().Str("transport", transport).Str("channel", id).Logger(),
		monitorCfg: o.monitor,
		frames:     make(chan []byte, buf),
		states:     make(chan StateChange, 4),
		done:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the channel to StateError, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

func (c *Conn) States() <-chan StateChange {
	return c.states
}

// Done is closed when the channel reaches a terminal state.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close moves the channel to StateDisconnected (unless it already ended), releases the
// transport resource and waits for the reader to stop.
func (c *Conn) Close(ctx context.Context) error {
	c.transition(StateDisconnected, nil)
	err := c.releaseResource()
	select {
	case <-c.drained:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginOpen moves Idle -> Connecting. The returned context is cancelled if the channel
// is closed while the attempt is still running.
func (c *Conn) beginOpen(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state.Terminal():
		return nil, ErrChannelClosed
	case c.state != StateIdle:
		return nil, ErrAlreadyOpen
	}
	ctx, cancel := context.WithCancel(ctx)
	c.openCancel = cancel
	c.transitionLocked(StateConnecting, nil)
	return ctx, nil
}

func (c *Conn) endOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openCancel != nil {
		c.openCancel()
		c.openCancel = nil
	}
}

// attach registers the function that releases the transport resource. It fails if
// the channel was closed while the resource was being acquired; the caller then owns
// the resource and must release it.
func (c *Conn) attach(release func() error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false
	}
	c.release = release
	return true
}

// connected moves Connecting -> Connected and starts the reader and, if configured,
// the inactivity monitor.
func (c *Conn) connected(read func() ([]byte, error)) error {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.transitionLocked(StateConnected, nil)
	c.readerStarted = true
	if c.monitorCfg != nil {
		c.monitor = NewMonitor(*c.monitorCfg, c.expire)
		c.monitor.Start()
	}
	monitor := c.monitor
	c.mu.Unlock()

	go c.readLoop(read, monitor)
	return nil
}

func (c *Conn) readLoop(read func() ([]byte, error), monitor *Monitor) {
	defer c.drain()
	for {
		frame, err := read()
		if err != nil {
			c.lost(err)
			return
		}
		if len(frame) == 0 {
			continue
		}
		if monitor != nil {
			monitor.Touch()
		}
		observability.RecordFrame(c.transport, "in", len(frame))
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// writable reports whether Write may proceed.
func (c *Conn) writable() error {
	switch s := c.State(); {
	case s == StateConnected:
		return nil
	case s.Terminal():
		return ErrChannelClosed
	default:
		return ErrNotConnected
	}
}

func (c *Conn) wrote(n int) {
	observability.RecordFrame(c.transport, "out", n)
}

// fail moves the channel to StateError and releases the resource.
func (c *Conn) fail(err error) {
	c.transition(StateError, err)
	_ = c.releaseResource()
}

// lost classifies a read or write failure on a live link.
func (c *Conn) lost(err error) {
	if c.isClean != nil && c.isClean(err) {
		c.transition(StateDisconnected, nil)
	} else {
		c.transition(StateError, err)
	}
	_ = c.releaseResource()
}

func (c *Conn) expire() {
	observability.RecordInactivityExpiration(c.transport)
	c.log.Warn().Msg("transport.Conn no inbound frames within threshold, marking link failed")
	c.transition(StateError, ErrInactive)
	ctx, cancel := context.WithTimeout(context.Background(), monitorCloseWait)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		c.log.Warn().Err(err).Msg("transport.Conn close after inactivity")
	}
}

func (c *Conn) releaseResource() error {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		fn := c.release
		c.mu.Unlock()
		if fn != nil {
			c.releaseErr = fn()
		}
	})
	return c.releaseErr
}

func (c *Conn) drain() {
	c.drainOnce.Do(func() {
		close(c.frames)
		close(c.drained)
	})
}

func (c *Conn) transition(to State, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(to, err)
}

func (c *Conn) transitionLocked(to State, err error) bool {
	if !validTransition(c.state, to) {
		return false
	}
	from := c.state
	c.state = to
	if to == StateError {
		c.err = err
	}
	c.states <- StateChange{State: to, Err: err, At: time.Now()}
	observability.RecordStateTransition(c.transport, to.String())

	ev := c.log.Info()
	if to == StateError {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("from", from.String()).Str("to", to.String()).Msg("transport.Conn state")

	if to.Terminal() {
		close(c.done)
		close(c.states)
		if c.openCancel != nil {
			c.openCancel()
			c.openCancel = nil
		}
		if c.monitor != nil {
			c.monitor.Stop()
		}
		if !c.readerStarted {
			c.drain()
		}
	}
	return true
}

func validTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConnecting || to == StateDisconnected
	case StateConnecting:
		return to == StateConnected || to.Terminal()
	case StateConnected:
		return to.Terminal()
	default:
		return false
	}
}

// Option tunes a transport.
type Option func(*options)

type options struct {
	monitor     *MonitorConfig
	frameBuffer int
}

// WithMonitor enables the inactivity monitor.
func WithMonitor(cfg MonitorConfig) Option {
	return func(o *options) {
		cfg = cfg.WithDefaults()
		o.monitor = &cfg
	}
}

// WithFrameBuffer sets the inbound frame channel capacity.
func WithFrameBuffer(n int) Option {
	return func(o *options) {
		o.frameBuffer = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
