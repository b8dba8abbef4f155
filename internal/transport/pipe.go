package transport

import (
	"context"
	"errors"
	"io"
)

// Pipe is one end of an in-memory channel pair. Frames written on one end arrive on
// the other in order. Closing either end disconnects the peer once it has drained
// the frames already in flight.
type Pipe struct {
	*Conn
	inbox chan []byte
	peer  *Pipe
}

var _ Channel = (*Pipe)(nil)

// NewPipe returns two connected ends. Each end must be opened independently.
func NewPipe(opts ...Option) (*Pipe, *Pipe) {
	o := buildOptions(opts)
	buf := o.frameBuffer
	if buf <= 0 {
		buf = defaultFrameBuffer
	}
	a := &Pipe{Conn: newConn("pipe", o), inbox: make(chan []byte, buf)}
	b := &Pipe{Conn: newConn("pipe", o), inbox: make(chan []byte, buf)}
	a.peer, b.peer = b, a
	a.isClean = isPipeClean
	b.isClean = isPipeClean
	return a, b
}

func (p *Pipe) Open(ctx context.Context) error {
	if _, err := p.beginOpen(ctx); err != nil {
		return err
	}
	defer p.endOpen()
	if !p.attach(func() error { return nil }) {
		return ErrChannelClosed
	}
	return p.connected(p.read)
}

func (p *Pipe) Write(ctx context.Context, frame []byte) error {
	if err := p.writable(); err != nil {
		return err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case p.peer.inbox <- buf:
		p.wrote(len(buf))
		return nil
	case <-p.peer.done:
		return ErrChannelClosed
	case <-p.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) read() ([]byte, error) {
	select {
	case f := <-p.inbox:
		return f, nil
	case <-p.peer.done:
		select {
		case f := <-p.inbox:
			return f, nil
		default:
			return nil, io.EOF
		}
	case <-p.done:
		return nil, ErrChannelClosed
	}
}

func isPipeClean(err error) bool {
	return errors.Is(err, io.EOF)
}
