package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("protocol: read out of bounds")
	ErrUnknownTag    = errors.New("protocol: unknown tag")
	ErrTrailingBytes = errors.New("protocol: trailing bytes after frame")
)

// UnknownTagError carries the offending tag byte. It matches ErrUnknownTag.
type UnknownTagError struct {
	Tag byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("protocol: unknown tag %d (0x%02X)", e.Tag, e.Tag)
}

func (e *UnknownTagError) Is(target error) bool {
	return target == ErrUnknownTag
}
