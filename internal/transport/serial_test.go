package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/protocol/frame"
	"github.com/danmuck/ratlink/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type pipePort struct {
	net.Conn
}

func (pipePort) Flush() error { return nil }

// fakeBridge returns an opener whose port is one end of a net.Pipe; the other end
// plays the BLE bridge.
func fakeBridge(t *testing.T) (PortOpener, net.Conn) {
	t.Helper()
	host, device := net.Pipe()
	t.Cleanup(func() {
		_ = host.Close()
		_ = device.Close()
	})
	return func(SerialConfig) (Port, error) { return pipePort{host}, nil }, device
}

func testSerialConfig() SerialConfig {
	cfg := DefaultSerialConfig()
	cfg.Device = "/dev/fake"
	cfg.Monitor = MonitorConfig{Interval: 10 * time.Millisecond, Threshold: 2 * time.Second}
	return cfg
}

func TestSerialFixedNotifications(t *testing.T) {
	testlog.Start(t)
	open, device := fakeBridge(t)
	ch := NewSerialWithOpener(testSerialConfig(), open)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ch.Open(ctx))
	defer ch.Close(ctx)

	go func() {
		_, _ = device.Write(protocol.EncodeEventPadded(protocol.CountUpdated{Left: 7, Right: 8}, protocol.NotifySize))
		_, _ = device.Write(protocol.EncodeEventPadded(protocol.ConfigUpdated{KP: 0.05, KD: 0.001}, protocol.NotifySize))
	}()

	for _, want := range []protocol.Event{
		protocol.CountUpdated{Left: 7, Right: 8},
		protocol.ConfigUpdated{KP: 0.05, KD: 0.001},
	} {
		select {
		case f := <-ch.Frames():
			require.Len(t, f, protocol.NotifySize)
			ev, err := protocol.Decode(f)
			require.NoError(t, err)
			require.Equal(t, want, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing notification %v", want)
		}
	}

	cmd := protocol.Encode(protocol.TurnLeft{})
	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := device.Read(buf)
		got <- buf[:n]
	}()
	require.NoError(t, ch.Write(ctx, cmd))
	require.Equal(t, cmd, <-got)
}

func TestSerialTaggedFraming(t *testing.T) {
	testlog.Start(t)
	open, device := fakeBridge(t)
	cfg := testSerialConfig()
	cfg.Framing = frame.FramingTagged
	ch := NewSerialWithOpener(cfg, open)
	require.NoError(t, ch.Open(context.Background()))
	defer ch.Close(context.Background())

	stream := append(protocol.EncodeEvent(protocol.GyroUpdated{X: 1, Y: 2, Z: 3}), protocol.EncodeEvent(protocol.PidDebug{})...)
	go func() { _, _ = device.Write(stream) }()

	first := <-ch.Frames()
	require.Len(t, first, 7)
	second := <-ch.Frames()
	require.Equal(t, []byte{0x05}, second)
}

func TestSerialTaggedFramingFailsOnUnknownTag(t *testing.T) {
	testlog.Start(t)
	open, device := fakeBridge(t)
	cfg := testSerialConfig()
	cfg.Framing = frame.FramingTagged
	ch := NewSerialWithOpener(cfg, open)
	require.NoError(t, ch.Open(context.Background()))
	defer ch.Close(context.Background())

	// A byte stream has no boundary to resync on after an unknown tag.
	stream := append(protocol.EncodeEvent(protocol.PidDebug{}), 0xFF, 0x01, 0x02, 0x00, 0x00, 0x00)
	go func() { _, _ = device.Write(stream) }()

	var frames [][]byte
	for f := range ch.Frames() {
		frames = append(frames, f)
	}
	require.Equal(t, [][]byte{{0x05}}, frames)
	require.Equal(t, StateError, ch.State())
	require.ErrorIs(t, ch.Err(), frame.ErrUnknownTag)
}

func TestSerialInactivityFailsLink(t *testing.T) {
	testlog.Start(t)
	open, _ := fakeBridge(t)
	cfg := testSerialConfig()
	cfg.Monitor = MonitorConfig{Interval: 5 * time.Millisecond, Threshold: 30 * time.Millisecond}
	ch := NewSerialWithOpener(cfg, open)
	require.NoError(t, ch.Open(context.Background()))

	require.Eventually(t, func() bool { return ch.State() == StateError }, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, ch.Err(), ErrInactive)
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	require.NoError(t, ch.Close(context.Background()))
}

func TestSerialDeviceHangupDisconnects(t *testing.T) {
	testlog.Start(t)
	open, device := fakeBridge(t)
	ch := NewSerialWithOpener(testSerialConfig(), open)
	require.NoError(t, ch.Open(context.Background()))

	require.NoError(t, device.Close())
	require.Eventually(t, func() bool { return ch.State().Terminal() }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StateDisconnected, ch.State())
}

func TestSerialOpenFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("no such device")
	ch := NewSerialWithOpener(testSerialConfig(), func(SerialConfig) (Port, error) { return nil, boom })
	err := ch.Open(context.Background())
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, StateError, ch.State())
}

func TestSerialConfigValidate(t *testing.T) {
	testlog.Start(t)
	cfg := testSerialConfig()
	require.NoError(t, cfg.Validate())

	cfg.Device = " "
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSerialConfig)

	cfg = testSerialConfig()
	cfg.Baud = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSerialConfig)

	cfg = testSerialConfig()
	cfg.NotifySize = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSerialConfig)

	ch := NewSerialWithOpener(cfg, func(SerialConfig) (Port, error) { return nil, errors.New("unreachable") })
	require.ErrorIs(t, ch.Open(context.Background()), ErrInvalidSerialConfig)
}
