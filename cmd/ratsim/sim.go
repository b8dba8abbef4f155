package main

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/ratlink/internal/observability"
	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// targetStep is how far one movement command moves each wheel target, in encoder ticks.
const targetStep = 360

type simOptions struct {
	interval time.Duration
	padTo    int
}

func defaultSimOptions() simOptions {
	return simOptions{interval: 100 * time.Millisecond}
}

// simulator serves one simulated robot per websocket connection. Every interval it
// reports wheel counts tracing sin/cos * 1000 and it answers commands the way the
// firmware does.
type simulator struct {
	opts     simOptions
	upgrader websocket.Upgrader
	log      zerolog.Logger
	start    time.Time
}

func newSimulator(opts simOptions) *simulator {
	if opts.interval <= 0 {
		opts.interval = defaultSimOptions().interval
	}
	return &simulator{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      observability.Component("ratsim"),
		start:    time.Now(),
	}
}

// robot is the per-connection device state.
type robot struct {
	mu     sync.Mutex
	gains  protocol.Configure
	target protocol.TargetUpdated
}

func (s *simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ratsim upgrade")
		return
	}
	defer conn.Close()
	log := s.log.With().Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("ratsim client connected")

	out := make(chan protocol.Event, 16)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go s.writeLoop(conn, out, done, stopped)

	bot := &robot{gains: protocol.DefaultConfigure()}
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Msg("ratsim client gone")
			close(done)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		cmd, err := protocol.DecodeCommand(msg)
		if err != nil {
			log.Warn().Err(err).Hex("frame", msg).Msg("ratsim dropped command")
			continue
		}
		log.Info().Str("command", commandName(cmd)).Msg("ratsim command")
		if reply := bot.apply(cmd); reply != nil && !deliver(out, reply, stopped) {
			log.Info().Msg("ratsim writer stopped")
			close(done)
			return
		}
	}
}

// deliver hands ev to the writer, reporting false once the writer has stopped.
func deliver(out chan<- protocol.Event, ev protocol.Event, stopped <-chan struct{}) bool {
	select {
	case out <- ev:
		return true
	case <-stopped:
		return false
	}
}

// writeLoop owns all writes to conn. It closes stopped on return; a failed write
// also closes conn so the reader's ReadMessage unblocks.
func (s *simulator) writeLoop(conn *websocket.Conn, replies <-chan protocol.Event, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()
	for {
		var ev protocol.Event
		select {
		case <-done:
			return
		case ev = <-replies:
		case now := <-ticker.C:
			ev = s.counts(now)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, s.encode(ev)); err != nil {
			s.log.Debug().Err(err).Msg("ratsim write")
			_ = conn.Close()
			return
		}
	}
}

func (s *simulator) counts(now time.Time) protocol.CountUpdated {
	t := now.Sub(s.start).Seconds()
	return protocol.CountUpdated{
		Left:  int32(math.Sin(t) * 1000),
		Right: int32(math.Cos(t) * 1000),
	}
}

func (s *simulator) encode(ev protocol.Event) []byte {
	if s.opts.padTo > 0 {
		return protocol.EncodeEventPadded(ev, s.opts.padTo)
	}
	return protocol.EncodeEvent(ev)
}

// apply updates the robot and returns the notification the firmware would send.
func (b *robot) apply(cmd protocol.Command) protocol.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch c := cmd.(type) {
	case protocol.Configure:
		b.gains = c
		return protocol.ConfigUpdated{KP: c.KP, KD: c.KD}
	case protocol.DebugMotors:
		return protocol.PidDebug{}
	case protocol.TurnLeft:
		b.target.Left -= targetStep
		b.target.Right += targetStep
	case protocol.TurnRight:
		b.target.Left += targetStep
		b.target.Right -= targetStep
	case protocol.MoveForward:
		b.target.Left += targetStep
		b.target.Right += targetStep
	case protocol.MoveBackward:
		b.target.Left -= targetStep
		b.target.Right -= targetStep
	default:
		return nil
	}
	return b.target
}

func commandName(cmd protocol.Command) string {
	if s, ok := cmd.(interface{ String() string }); ok {
		return s.String()
	}
	return "unknown"
}
