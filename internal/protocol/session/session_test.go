package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/testutil/testlog"
	"github.com/danmuck/ratlink/internal/transport"
	"github.com/stretchr/testify/require"
)

// startSession opens a pipe pair and runs a session on the host end. The device end
// is returned for injecting frames.
func startSession(t *testing.T, cfg Config, opts ...transport.Option) (*Session, *transport.Pipe, <-chan error) {
	t.Helper()
	host, device := transport.NewPipe(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := New(host, cfg)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, device.Open(ctx))
	t.Cleanup(func() {
		_ = s.Close()
		_ = device.Close(context.Background())
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, device, done
}

func nextEvent(t *testing.T, s *Session) protocol.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestSessionDecodesInDeliveryOrder(t *testing.T) {
	testlog.Start(t)
	s, device, done := startSession(t, DefaultConfig())
	ctx := context.Background()

	want := []protocol.Event{
		protocol.CountUpdated{Left: 1, Right: 2},
		protocol.TargetUpdated{Left: -3, Right: 4},
		protocol.GyroUpdated{X: 1, Y: 2, Z: 3},
		protocol.ConfigUpdated{KP: 0.05, KD: 0.001},
		protocol.PidDebug{},
	}
	for _, ev := range want {
		require.NoError(t, device.Write(ctx, protocol.EncodeEventPadded(ev, protocol.NotifySize)))
	}
	for _, ev := range want {
		require.Equal(t, ev, nextEvent(t, s))
	}

	require.NoError(t, device.Close(ctx))
	require.NoError(t, waitRun(t, done))
	_, ok := <-s.Events()
	require.False(t, ok)
}

func TestSessionDropsUndecodableFrames(t *testing.T) {
	testlog.Start(t)
	s, device, _ := startSession(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, device.Write(ctx, []byte{0xFF}))
	require.NoError(t, device.Write(ctx, []byte{0x01, 0x00, 0x00}))
	require.NoError(t, device.Write(ctx, protocol.EncodeEvent(protocol.GyroUpdated{X: 9})))

	require.Equal(t, protocol.GyroUpdated{X: 9}, nextEvent(t, s))
	require.Equal(t, transport.StateConnected, s.Channel().State())
}

func TestSessionStrictTrailingDropsPaddedFrames(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Trailing = protocol.TrailingReject
	s, device, _ := startSession(t, cfg)
	ctx := context.Background()

	require.NoError(t, device.Write(ctx, protocol.EncodeEventPadded(protocol.PidDebug{}, protocol.NotifySize)))
	require.NoError(t, device.Write(ctx, protocol.EncodeEvent(protocol.CountUpdated{Left: 5, Right: 6})))
	require.Equal(t, protocol.CountUpdated{Left: 5, Right: 6}, nextEvent(t, s))
}

func TestSessionClosesAfterConsecutiveFailures(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxDecodeFailures = 3
	s, device, done := startSession(t, cfg)
	ctx := context.Background()

	// A good frame between failures resets the count.
	require.NoError(t, device.Write(ctx, []byte{0xEE}))
	require.NoError(t, device.Write(ctx, []byte{0xEE}))
	require.NoError(t, device.Write(ctx, protocol.EncodeEvent(protocol.PidDebug{})))
	require.Equal(t, protocol.PidDebug{}, nextEvent(t, s))

	for i := 0; i < 3; i++ {
		require.NoError(t, device.Write(ctx, []byte{0xEE}))
	}
	require.ErrorIs(t, waitRun(t, done), ErrTooManyDecodeFailures)
	require.Equal(t, transport.StateDisconnected, s.Channel().State())
}

func TestSessionRunReturnsChannelError(t *testing.T) {
	testlog.Start(t)
	_, _, done := startSession(t, DefaultConfig(),
		transport.WithMonitor(transport.MonitorConfig{Interval: 5 * time.Millisecond, Threshold: 30 * time.Millisecond}))
	require.ErrorIs(t, waitRun(t, done), transport.ErrInactive)
}

func TestSessionRunOnce(t *testing.T) {
	testlog.Start(t)
	host, _ := transport.NewPipe()
	s := New(host, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.running.Load() }, time.Second, time.Millisecond)
	require.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)
	cancel()
	require.ErrorIs(t, waitRun(t, done), context.Canceled)
}

func TestSessionSendEncodesCommand(t *testing.T) {
	testlog.Start(t)
	s, device, _ := startSession(t, DefaultConfig())

	require.NoError(t, s.Send(context.Background(), protocol.Configure{KP: 1.5, KD: 0.25}))
	select {
	case f := <-device.Frames():
		require.Equal(t, []byte{0x06, 0x00, 0x00, 0xC0, 0x3F, 0x00, 0x00, 0x80, 0x3E}, f)
		cmd, err := protocol.DecodeCommand(f)
		require.NoError(t, err)
		require.Equal(t, protocol.Configure{KP: 1.5, KD: 0.25}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not receive command")
	}
}

func TestSessionSendBeforeOpen(t *testing.T) {
	testlog.Start(t)
	host, _ := transport.NewPipe()
	s := New(host, DefaultConfig())
	err := s.Send(context.Background(), protocol.TurnLeft{})
	require.ErrorIs(t, err, transport.ErrNotConnected)
}

type recorder struct {
	seen []string
}

func (r *recorder) OnCountUpdated(e protocol.CountUpdated)   { r.seen = append(r.seen, e.String()) }
func (r *recorder) OnTargetUpdated(e protocol.TargetUpdated) { r.seen = append(r.seen, e.String()) }
func (r *recorder) OnGyroUpdated(e protocol.GyroUpdated)     { r.seen = append(r.seen, e.String()) }
func (r *recorder) OnConfigUpdated(e protocol.ConfigUpdated) { r.seen = append(r.seen, e.String()) }
func (r *recorder) OnPidDebug(e protocol.PidDebug)           { r.seen = append(r.seen, e.String()) }

func TestSessionEventsDispatchToHandler(t *testing.T) {
	testlog.Start(t)
	s, device, _ := startSession(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, device.Write(ctx, protocol.EncodeEvent(protocol.PidDebug{})))
	require.NoError(t, device.Write(ctx, protocol.EncodeEvent(protocol.CountUpdated{Left: 1, Right: 1})))

	rec := &recorder{}
	nextEvent(t, s).Accept(rec)
	nextEvent(t, s).Accept(rec)
	require.Equal(t, []string{protocol.PidDebug{}.String(), protocol.CountUpdated{Left: 1, Right: 1}.String()}, rec.seen)
}

func TestFailureReason(t *testing.T) {
	testlog.Start(t)
	cases := map[string]error{
		"out_of_bounds":  fmt.Errorf("wrap: %w", protocol.ErrOutOfBounds),
		"unknown_tag":    &protocol.UnknownTagError{Tag: 0xFF},
		"trailing_bytes": protocol.ErrTrailingBytes,
		"other":          errors.New("boom"),
	}
	for want, err := range cases {
		require.Equal(t, want, FailureReason(err))
	}
}

func TestEventName(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, "gyro_updated", EventName(protocol.GyroUpdated{}))
	require.Equal(t, "pid_debug", EventName(protocol.PidDebug{}))
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MaxDecodeFailures: 4}.WithDefaults()
	require.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	require.Equal(t, time.Second, cfg.InactivityThreshold)
	require.Equal(t, 4, cfg.MaxDecodeFailures)
	require.Equal(t, 250*time.Millisecond, cfg.Backoff.InitialDelay)
	require.Equal(t, transport.MonitorConfig{Interval: time.Second, Threshold: time.Second}, cfg.Monitor())
}
