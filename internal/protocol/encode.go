package protocol

import (
	"encoding/binary"
	"math"
)

// Encode returns the complete frame for cmd.
func Encode(cmd Command) []byte {
	return AppendEncode(make([]byte, 0, 9), cmd)
}

// AppendEncode appends the frame for cmd to dst.
func AppendEncode(dst []byte, cmd Command) []byte {
	dst = append(dst, byte(cmd.Tag()))
	return cmd.appendPayload(dst)
}

func appendInt16(dst []byte, v int16) []byte {
	return binary.LittleEndian.AppendUint16(dst, uint16(v))
}

func appendInt32(dst []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

func appendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}
