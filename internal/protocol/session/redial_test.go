package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/testutil/testlog"
	"github.com/danmuck/ratlink/internal/transport"
	"github.com/stretchr/testify/require"
)

func fastRedialConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	return cfg
}

func TestRedialerReconnectsAfterLinkLoss(t *testing.T) {
	testlog.Start(t)
	var dials atomic.Int32
	// Each device sends one count and hangs up.
	factory := func() transport.Channel {
		n := dials.Add(1)
		host, device := transport.NewPipe()
		go func() {
			ctx := context.Background()
			if err := device.Open(ctx); err != nil {
				return
			}
			_ = device.Write(ctx, protocol.EncodeEvent(protocol.CountUpdated{Left: n}))
			_ = device.Close(ctx)
		}()
		return host
	}

	r := NewRedialer(factory, fastRedialConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for want := int32(1); want <= 3; want++ {
		select {
		case ev := <-r.Events():
			require.Equal(t, protocol.CountUpdated{Left: want}, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("no event from session %d", want)
		}
	}
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	for range r.Events() {
	}
}

func TestRedialerGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	var dials atomic.Int32
	factory := func() transport.Channel {
		dials.Add(1)
		host, _ := transport.NewPipe()
		_ = host.Close(context.Background())
		return host
	}
	cfg := fastRedialConfig()
	cfg.MaxAttempts = 3
	r := NewRedialer(factory, cfg)

	err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrRedialExhausted)
	require.Equal(t, int32(3), dials.Load())
	_, ok := <-r.Events()
	require.False(t, ok)
}

func TestRedialerSendWithoutSession(t *testing.T) {
	testlog.Start(t)
	r := NewRedialer(func() transport.Channel {
		host, _ := transport.NewPipe()
		return host
	}, DefaultConfig())
	require.ErrorIs(t, r.Send(context.Background(), protocol.MoveForward{}), transport.ErrNotConnected)
}

func TestRedialerSendsOnCurrentSession(t *testing.T) {
	testlog.Start(t)
	devices := make(chan *transport.Pipe, 1)
	factory := func() transport.Channel {
		host, device := transport.NewPipe()
		require.NoError(t, device.Open(context.Background()))
		devices <- device
		return host
	}
	r := NewRedialer(factory, fastRedialConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	device := <-devices
	require.Eventually(t, func() bool {
		return r.Send(ctx, protocol.DebugMotors{}) == nil
	}, 2*time.Second, 5*time.Millisecond)
	select {
	case f := <-device.Frames():
		require.Equal(t, []byte{0x05}, f)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not receive command")
	}
}

func TestRedialerRestartsBackoffAfterConnect(t *testing.T) {
	testlog.Start(t)
	// Dials 1, 2, 4, 5, 6 fail; dial 3 connects and the device hangs up.
	var dials atomic.Int32
	factory := func() transport.Channel {
		n := dials.Add(1)
		host, device := transport.NewPipe()
		if n != 3 {
			_ = host.Close(context.Background())
			return host
		}
		go func() {
			ctx := context.Background()
			if err := device.Open(ctx); err != nil {
				return
			}
			_ = device.Write(ctx, protocol.EncodeEvent(protocol.PidDebug{}))
			_ = device.Close(ctx)
		}()
		return host
	}
	cfg := fastRedialConfig()
	cfg.MaxAttempts = 3
	r := NewRedialer(factory, cfg)

	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}

	go func() {
		for range r.Events() {
		}
	}()
	require.ErrorIs(t, r.Run(context.Background()), ErrRedialExhausted)
	require.Equal(t, int32(6), dials.Load())

	mu.Lock()
	defer mu.Unlock()
	ms := time.Millisecond
	require.Equal(t, []time.Duration{ms, 2 * ms, ms, 2 * ms, 4 * ms}, sleeps)
}
