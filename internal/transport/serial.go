package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/protocol/frame"
	"github.com/danmuck/ratlink/internal/protocol/schema"
	"github.com/tarm/serial"
)

var ErrInvalidSerialConfig = errors.New("transport: invalid serial config")

// Port is an open serial device.
type Port interface {
	io.ReadWriteCloser
	// Flush discards unread input and unsent output.
	Flush() error
}

// PortOpener opens the device named in cfg. Tests substitute in-memory ports.
type PortOpener func(cfg SerialConfig) (Port, error)

// SerialConfig configures a BLE UART bridge (HM-10 style) attached as a serial device.
// The bridge forwards every notification from the robot verbatim, so the default
// framing reads fixed NotifySize chunks. With FramingTagged an unknown tag fails the
// link: a byte stream gives no boundary to resync on.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	Framing     frame.Framing
	NotifySize  int
	Limits      frame.Limits
	Monitor     MonitorConfig
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/ttyUSB0",
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
		Framing:     frame.FramingFixed,
		NotifySize:  protocol.NotifySize,
		Limits:      frame.DefaultLimits(),
		Monitor:     DefaultMonitorConfig(),
	}
}

func (c SerialConfig) Validate() error {
	if strings.TrimSpace(c.Device) == "" {
		return fmt.Errorf("%w: missing device", ErrInvalidSerialConfig)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("%w: baud must be positive", ErrInvalidSerialConfig)
	}
	if c.Framing == frame.FramingFixed && c.NotifySize <= 0 {
		return fmt.Errorf("%w: notify_size must be positive for fixed framing", ErrInvalidSerialConfig)
	}
	return nil
}

// OpenNativePort opens a host serial device through tarm/serial.
func OpenNativePort(cfg SerialConfig) (Port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &nativePort{port: p}, nil
}

// nativePort turns tarm/serial read timeouts into polling, so a blocked read notices
// Close within one ReadTimeout instead of hanging on the descriptor.
type nativePort struct {
	port   *serial.Port
	closed atomic.Bool
}

func (p *nativePort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if p.closed.Load() {
			return 0, io.EOF
		}
	}
}

func (p *nativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *nativePort) Flush() error {
	return p.port.Flush()
}

func (p *nativePort) Close() error {
	p.closed.Store(true)
	return p.port.Close()
}

// Serial is a Channel over a BLE UART bridge. The inactivity monitor is always on:
// a notify-only link that goes out of range just stops talking.
type Serial struct {
	*Conn
	cfg  SerialConfig
	open PortOpener

	mu   sync.Mutex
	port Port
	wmu  sync.Mutex
}

var _ Channel = (*Serial)(nil)

func NewSerial(cfg SerialConfig, opts ...Option) *Serial {
	return NewSerialWithOpener(cfg, OpenNativePort, opts...)
}

func NewSerialWithOpener(cfg SerialConfig, open PortOpener, opts ...Option) *Serial {
	if cfg.Limits.MaxFrameBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	cfg.Monitor = cfg.Monitor.WithDefaults()
	opts = append([]Option{WithMonitor(cfg.Monitor)}, opts...)
	s := &Serial{
		Conn: newConn("serial", buildOptions(opts)),
		cfg:  cfg,
		open: open,
	}
	s.isClean = func(err error) bool { return errors.Is(err, io.EOF) }
	return s
}

func (s *Serial) Open(ctx context.Context) error {
	if _, err := s.beginOpen(ctx); err != nil {
		return err
	}
	defer s.endOpen()

	if err := s.cfg.Validate(); err != nil {
		s.fail(err)
		return err
	}
	port, err := s.open(s.cfg)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnect, err)
		s.fail(err)
		return err
	}
	if err := port.Flush(); err != nil {
		s.log.Debug().Err(err).Msg("transport.Serial flush stale input")
	}
	fr, err := frame.NewReader(port, s.cfg.Framing, s.cfg.NotifySize, schema.Inbound, s.cfg.Limits)
	if err != nil {
		_ = port.Close()
		s.fail(err)
		return err
	}
	if !s.attach(port.Close) {
		_ = port.Close()
		return ErrChannelClosed
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	s.log.Debug().Str("device", s.cfg.Device).Int("baud", s.cfg.Baud).Str("framing", string(s.cfg.Framing)).Msg("transport.Serial opened")
	return s.connected(fr.Next)
}

func (s *Serial) Write(ctx context.Context, frame []byte) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := port.Write(frame); err != nil {
		s.lost(err)
		return fmt.Errorf("transport: serial write: %w", err)
	}
	s.wrote(len(frame))
	return nil
}
