package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/ratlink/internal/observability"
	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/protocol/schema"
	"github.com/danmuck/ratlink/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrTooManyDecodeFailures = errors.New("session: too many consecutive decode failures")
	ErrAlreadyRunning        = errors.New("session: already running")
)

// Session decodes the frames of one channel into events and encodes commands onto it.
type Session struct {
	ch      transport.Channel
	cfg     Config
	dec     protocol.Decoder
	events  chan protocol.Event
	log     zerolog.Logger
	running atomic.Bool

	failures int
}

func New(ch transport.Channel, cfg Config) *Session {
	cfg = cfg.WithDefaults()
	return &Session{
		ch:     ch,
		cfg:    cfg,
		dec:    protocol.Decoder{Trailing: cfg.Trailing},
		events: make(chan protocol.Event, 64),
		log:    observability.Component("session").With().Str("channel", ch.ID()).Logger(),
	}
}

func (s *Session) Channel() transport.Channel {
	return s.ch
}

// Events is closed when Run returns.
func (s *Session) Events() <-chan protocol.Event {
	return s.events
}

// Open opens the channel within ConnectTimeout.
func (s *Session) Open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	return s.ch.Open(ctx)
}

// Close closes the channel, waiting at most WriteTimeout for teardown.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	return s.ch.Close(ctx)
}

// Run decodes frames until the channel ends or ctx is done. It returns nil after a
// clean disconnect, the channel error after a failure, and ErrTooManyDecodeFailures
// when the failure policy closed the channel.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.events)
	return s.pump(ctx, s.events)
}

func (s *Session) pump(ctx context.Context, out chan<- protocol.Event) error {
	frames := s.ch.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return s.ch.Err()
			}
			ev, err := s.dec.Decode(frame)
			if err != nil {
				if err := s.dropped(frame, err); err != nil {
					return err
				}
				continue
			}
			s.failures = 0
			observability.RecordEvent(EventName(ev))
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// dropped applies the decode failure policy to one bad frame.
func (s *Session) dropped(frame []byte, err error) error {
	s.failures++
	reason := FailureReason(err)
	observability.RecordDecodeFailure(reason)
	s.log.Warn().Err(err).Str("reason", reason).Hex("frame", frame).Int("consecutive", s.failures).Msg("session dropped frame")

	if s.cfg.MaxDecodeFailures <= 0 || s.failures < s.cfg.MaxDecodeFailures {
		return nil
	}
	if cerr := s.Close(); cerr != nil {
		s.log.Warn().Err(cerr).Msg("session close after decode failures")
	}
	return fmt.Errorf("%w: %d", ErrTooManyDecodeFailures, s.failures)
}

// Send encodes cmd and writes it within WriteTimeout.
func (s *Session) Send(ctx context.Context, cmd protocol.Command) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	frame := protocol.Encode(cmd)
	if err := s.ch.Write(ctx, frame); err != nil {
		return fmt.Errorf("session: send %v: %w", cmd, err)
	}
	s.log.Debug().Str("command", fmt.Sprint(cmd)).Hex("frame", frame).Msg("session sent")
	return nil
}

// FailureReason classifies a decode error for metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, protocol.ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(err, protocol.ErrTrailingBytes):
		return "trailing_bytes"
	default:
		return "other"
	}
}

// EventName returns the schema name of ev, e.g. "gyro_updated".
func EventName(ev protocol.Event) string {
	if l, ok := schema.Lookup(schema.Inbound, ev.Tag()); ok {
		return l.Name
	}
	return "unknown"
}
