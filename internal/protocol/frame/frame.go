// Package frame splits byte streams into protocol frames for transports that have no
// message boundaries of their own (serial links).
package frame

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/ratlink/internal/protocol/schema"
)

var (
	ErrShortFrame     = errors.New("frame: short frame")
	ErrUnknownTag     = errors.New("frame: unknown tag")
	ErrFrameTooLarge  = errors.New("frame: frame too large")
	ErrInvalidFraming = errors.New("frame: invalid framing mode")
)

// Limits constrains frame memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 512}
}

// Framing selects how a stream is cut into frames.
type Framing string

const (
	// FramingFixed reads fixed-size chunks, matching BLE UART bridges that forward each
	// 20-byte notification verbatim.
	FramingFixed Framing = "fixed"
	// FramingTagged reads one tag byte and then the tag-implied payload.
	FramingTagged Framing = "tagged"
)

func ParseFraming(raw string) (Framing, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FramingFixed:
		return FramingFixed, nil
	case FramingTagged:
		return FramingTagged, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFraming, raw)
	}
}

// ReadTagged reads one frame whose length is implied by its tag in direction dir.
func ReadTagged(r io.Reader, dir schema.Direction, limits Limits) ([]byte, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	l, ok := schema.Lookup(dir, schema.Tag(tag[0]))
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownTag, tag[0])
	}
	if limits.MaxFrameBytes > 0 && l.FrameLen() > limits.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, l.FrameLen())
	buf[0] = tag[0]
	if _, err := io.ReadFull(r, buf[1:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: tag=0x%02X", ErrShortFrame, tag[0])
		}
		return nil, err
	}
	return buf, nil
}

// ReadFixed reads exactly size bytes as one frame.
func ReadFixed(r io.Reader, size int, limits Limits) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size=%d", ErrInvalidFraming, size)
	}
	if limits.MaxFrameBytes > 0 && size > limits.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return buf, nil
}

// Reader yields frames from a stream using one framing mode.
type Reader struct {
	r       io.Reader
	framing Framing
	size    int
	dir     schema.Direction
	limits  Limits
}

// NewReader builds a frame reader. size is only used by FramingFixed.
func NewReader(r io.Reader, framing Framing, size int, dir schema.Direction, limits Limits) (*Reader, error) {
	switch framing {
	case FramingFixed:
		if size <= 0 {
			return nil, fmt.Errorf("%w: fixed framing needs a positive size", ErrInvalidFraming)
		}
	case FramingTagged:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFraming, framing)
	}
	return &Reader{r: r, framing: framing, size: size, dir: dir, limits: limits}, nil
}

// Next returns the next frame. io.EOF is returned unchanged at a clean boundary.
func (fr *Reader) Next() ([]byte, error) {
	if fr.framing == FramingTagged {
		return ReadTagged(fr.r, fr.dir, fr.limits)
	}
	return ReadFixed(fr.r, fr.size, fr.limits)
}
