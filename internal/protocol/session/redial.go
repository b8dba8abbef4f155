package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/ratlink/internal/observability"
	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/transport"
	"github.com/rs/zerolog"
)

var ErrRedialExhausted = errors.New("session: redial attempts exhausted")

// Redialer keeps a session alive across link loss. Every attempt uses a fresh channel
// from the factory; terminal channels are never reopened.
type Redialer struct {
	factory func() transport.Channel
	cfg     Config
	events  chan protocol.Event
	log     zerolog.Logger

	backoff *backoff
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	current *Session
}

func NewRedialer(factory func() transport.Channel, cfg Config) *Redialer {
	return &Redialer{
		factory: factory,
		cfg:     cfg.WithDefaults(),
		events:  make(chan protocol.Event, 64),
		log:     observability.Component("session.redial"),
		backoff: newBackoff(cfg.WithDefaults().Backoff, time.Now().UnixNano()),
		sleep:   sleepCtx,
	}
}

// Events carries events from every session in order. It is closed when Run returns.
func (r *Redialer) Events() <-chan protocol.Event {
	return r.events
}

// Send writes cmd on the current session.
func (r *Redialer) Send(ctx context.Context, cmd protocol.Command) error {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s == nil {
		return transport.ErrNotConnected
	}
	return s.Send(ctx, cmd)
}

// Run dials, pumps events and redials until ctx is done or MaxAttempts consecutive
// dials have failed.
func (r *Redialer) Run(ctx context.Context) error {
	defer close(r.events)
	failed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := New(r.factory(), r.cfg)
		log := r.log.With().Str("channel", s.ch.ID()).Int("retry", r.backoff.Retries()).Logger()

		if err := s.Open(ctx); err != nil {
			_ = s.Close()
			failed++
			log.Warn().Err(err).Int("failed", failed).Msg("session.Redialer dial failed")
			if r.cfg.MaxAttempts > 0 && failed >= r.cfg.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrRedialExhausted, failed, err)
			}
		} else {
			failed = 0
			r.backoff.Reset()
			log.Info().Msg("session.Redialer connected")
			r.setCurrent(s)
			err := s.pump(ctx, r.events)
			r.setCurrent(nil)
			_ = s.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("session.Redialer link lost")
		}

		if err := r.sleep(ctx, r.backoff.Next()); err != nil {
			return err
		}
	}
}

func (r *Redialer) setCurrent(s *Session) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
