package schema

import (
	"fmt"
	"sort"
)

// Tag is the leading byte of every frame.
type Tag uint8

// Direction selects which tag space a frame belongs to. The same byte value means
// different messages inbound and outbound.
type Direction uint8

const (
	Inbound  Direction = iota + 1 // device -> host
	Outbound                      // host -> device
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Inbound tags.
const (
	EventCountUpdated  Tag = 0x01
	EventTargetUpdated Tag = 0x02
	EventGyroUpdated   Tag = 0x03
	EventConfigUpdated Tag = 0x04
	EventPidDebug      Tag = 0x05
)

// Outbound tags.
const (
	CommandTurnLeft     Tag = 0x01
	CommandTurnRight    Tag = 0x02
	CommandMoveForward  Tag = 0x03
	CommandMoveBackward Tag = 0x04
	CommandDebugMotors  Tag = 0x05
	CommandConfigure    Tag = 0x06
)

// Kind is the wire type of one payload field. All multi-byte kinds are little-endian.
type Kind uint8

const (
	I16 Kind = iota + 1
	I32
	F32
)

func (k Kind) Width() int {
	switch k {
	case I16:
		return 2
	case I32, F32:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case I16:
		return "i16"
	case I32:
		return "i32"
	case F32:
		return "f32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type FieldSpec struct {
	Name string
	Kind Kind
}

// Layout is the fixed shape implied by one tag.
type Layout struct {
	Tag    Tag
	Name   string
	Fields []FieldSpec
}

func (l Layout) PayloadLen() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Kind.Width()
	}
	return n
}

// FrameLen is the tag byte plus the payload.
func (l Layout) FrameLen() int {
	return 1 + l.PayloadLen()
}

func (l Layout) String() string {
	s := fmt.Sprintf("0x%02X %s", uint8(l.Tag), l.Name)
	for _, f := range l.Fields {
		s += fmt.Sprintf(" %s:%s", f.Name, f.Kind)
	}
	return s
}

var layouts = map[Direction]map[Tag]Layout{
	Inbound: {
		EventCountUpdated:  {EventCountUpdated, "count_updated", []FieldSpec{{"left", I32}, {"right", I32}}},
		EventTargetUpdated: {EventTargetUpdated, "target_updated", []FieldSpec{{"left", I32}, {"right", I32}}},
		EventGyroUpdated:   {EventGyroUpdated, "gyro_updated", []FieldSpec{{"x", I16}, {"y", I16}, {"z", I16}}},
		EventConfigUpdated: {EventConfigUpdated, "config_updated", []FieldSpec{{"k_p", F32}, {"k_d", F32}}},
		EventPidDebug:      {EventPidDebug, "pid_debug", nil},
	},
	Outbound: {
		CommandTurnLeft:     {CommandTurnLeft, "turn_left", nil},
		CommandTurnRight:    {CommandTurnRight, "turn_right", nil},
		CommandMoveForward:  {CommandMoveForward, "move_forward", nil},
		CommandMoveBackward: {CommandMoveBackward, "move_backward", nil},
		CommandDebugMotors:  {CommandDebugMotors, "debug_motors", nil},
		CommandConfigure:    {CommandConfigure, "configure", []FieldSpec{{"k_p", F32}, {"k_d", F32}}},
	},
}

// Lookup returns the layout for tag in the given direction.
func Lookup(dir Direction, tag Tag) (Layout, bool) {
	l, ok := layouts[dir][tag]
	return l, ok
}

// Layouts returns every layout for dir, ordered by tag.
func Layouts(dir Direction) []Layout {
	out := make([]Layout, 0, len(layouts[dir]))
	for _, l := range layouts[dir] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tag < out[j].Tag
	})
	return out
}

// MaxFrameLen is the longest frame defined for dir.
func MaxFrameLen(dir Direction) int {
	max := 0
	for _, l := range layouts[dir] {
		if n := l.FrameLen(); n > max {
			max = n
		}
	}
	return max
}
