package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/ratlink/internal/protocol"
)

// printer writes one line per event. It keeps the latest gains so a config echo can
// be matched by the configure command.
type printer struct {
	out io.Writer
	now func() time.Time

	mu     sync.Mutex
	config *protocol.ConfigUpdated
}

var _ protocol.EventHandler = (*printer)(nil)

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, now: time.Now}
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

func (p *printer) OnCountUpdated(e protocol.CountUpdated) {
	p.line("count   left=%-8d right=%d", e.Left, e.Right)
}

func (p *printer) OnTargetUpdated(e protocol.TargetUpdated) {
	p.line("target  left=%-8d right=%d", e.Left, e.Right)
}

func (p *printer) OnGyroUpdated(e protocol.GyroUpdated) {
	p.line("gyro    x=%-6d y=%-6d z=%d", e.X, e.Y, e.Z)
}

func (p *printer) OnConfigUpdated(e protocol.ConfigUpdated) {
	p.mu.Lock()
	p.config = &e
	p.mu.Unlock()
	p.line("config  k_p=%g k_d=%g", e.KP, e.KD)
}

func (p *printer) OnPidDebug(protocol.PidDebug) {
	p.line("pid     debug")
}

func (p *printer) lastConfig() (protocol.ConfigUpdated, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config == nil {
		return protocol.ConfigUpdated{}, false
	}
	return *p.config, true
}
