package protocol

import (
	"fmt"

	"github.com/danmuck/ratlink/internal/protocol/schema"
)

// TrailingPolicy decides what happens to bytes after the last declared field.
type TrailingPolicy int

const (
	// TrailingIgnore accepts padded frames. BLE notifications arrive as fixed
	// 20-byte buffers, so this is the default.
	TrailingIgnore TrailingPolicy = iota
	// TrailingReject fails with ErrTrailingBytes.
	TrailingReject
)

func (p TrailingPolicy) String() string {
	switch p {
	case TrailingIgnore:
		return "ignore"
	case TrailingReject:
		return "reject"
	default:
		return fmt.Sprintf("trailing(%d)", int(p))
	}
}

// ParseTrailingPolicy accepts "ignore"/"permissive" and "reject"/"strict".
func ParseTrailingPolicy(raw string) (TrailingPolicy, error) {
	switch raw {
	case "", "ignore", "permissive":
		return TrailingIgnore, nil
	case "reject", "strict":
		return TrailingReject, nil
	default:
		return TrailingIgnore, fmt.Errorf("protocol: unknown trailing policy %q", raw)
	}
}

// Decoder decodes frames with a fixed trailing-bytes policy. The zero value is
// permissive. Decoder holds no mutable state and is safe for concurrent use.
type Decoder struct {
	Trailing TrailingPolicy
}

// Decode decodes one inbound frame, ignoring trailing bytes.
func Decode(frame []byte) (Event, error) {
	return Decoder{}.Decode(frame)
}

// Decode decodes one inbound frame. On error the returned Event is nil.
func (d Decoder) Decode(frame []byte) (Event, error) {
	c := NewCursor(frame)
	raw, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	var ev Event
	switch tag := schema.Tag(raw); tag {
	case schema.EventCountUpdated:
		left, right, err := readInt32Pair(c)
		if err != nil {
			return nil, err
		}
		ev = CountUpdated{Left: left, Right: right}
	case schema.EventTargetUpdated:
		left, right, err := readInt32Pair(c)
		if err != nil {
			return nil, err
		}
		ev = TargetUpdated{Left: left, Right: right}
	case schema.EventGyroUpdated:
		x, err := c.ReadInt16LE()
		if err != nil {
			return nil, err
		}
		y, err := c.ReadInt16LE()
		if err != nil {
			return nil, err
		}
		z, err := c.ReadInt16LE()
		if err != nil {
			return nil, err
		}
		ev = GyroUpdated{X: x, Y: y, Z: z}
	case schema.EventConfigUpdated:
		kp, kd, err := readFloat32Pair(c)
		if err != nil {
			return nil, err
		}
		ev = ConfigUpdated{KP: kp, KD: kd}
	case schema.EventPidDebug:
		ev = PidDebug{}
	default:
		return nil, &UnknownTagError{Tag: raw}
	}
	if err := d.checkTrailing(c, raw); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeCommand decodes one outbound frame the way the device firmware does.
func DecodeCommand(frame []byte) (Command, error) {
	return Decoder{}.DecodeCommand(frame)
}

// DecodeCommand decodes one host -> device frame. On error the returned Command is nil.
func (d Decoder) DecodeCommand(frame []byte) (Command, error) {
	c := NewCursor(frame)
	raw, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	var cmd Command
	switch tag := schema.Tag(raw); tag {
	case schema.CommandTurnLeft:
		cmd = TurnLeft{}
	case schema.CommandTurnRight:
		cmd = TurnRight{}
	case schema.CommandMoveForward:
		cmd = MoveForward{}
	case schema.CommandMoveBackward:
		cmd = MoveBackward{}
	case schema.CommandDebugMotors:
		cmd = DebugMotors{}
	case schema.CommandConfigure:
		kp, kd, err := readFloat32Pair(c)
		if err != nil {
			return nil, err
		}
		cmd = Configure{KP: kp, KD: kd}
	default:
		return nil, &UnknownTagError{Tag: raw}
	}
	if err := d.checkTrailing(c, raw); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (d Decoder) checkTrailing(c *Cursor, tag byte) error {
	if d.Trailing != TrailingReject || c.Remaining() == 0 {
		return nil
	}
	return fmt.Errorf("%w: tag=0x%02X extra=%d", ErrTrailingBytes, tag, c.Remaining())
}

func readInt32Pair(c *Cursor) (int32, int32, error) {
	a, err := c.ReadInt32LE()
	if err != nil {
		return 0, 0, err
	}
	b, err := c.ReadInt32LE()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func readFloat32Pair(c *Cursor) (float32, float32, error) {
	a, err := c.ReadFloat32LE()
	if err != nil {
		return 0, 0, err
	}
	b, err := c.ReadFloat32LE()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
