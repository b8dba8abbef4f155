package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/ratlink/internal/protocol/schema"
)

// Command is one host -> device instruction. Every variant must provide its payload
// writer, so Encode needs no type switch and cannot miss a case.
type Command interface {
	Tag() schema.Tag
	appendPayload(dst []byte) []byte
}

type TurnLeft struct{}
type TurnRight struct{}
type MoveForward struct{}
type MoveBackward struct{}

// DebugMotors toggles the motor controller debug output on the device.
type DebugMotors struct{}

// Configure replaces the PD controller gains.
type Configure struct {
	KP float32
	KD float32
}

// DefaultConfigure holds the gains the firmware boots with.
func DefaultConfigure() Configure {
	return Configure{KP: 0.05, KD: 0.001}
}

func (TurnLeft) Tag() schema.Tag     { return schema.CommandTurnLeft }
func (TurnRight) Tag() schema.Tag    { return schema.CommandTurnRight }
func (MoveForward) Tag() schema.Tag  { return schema.CommandMoveForward }
func (MoveBackward) Tag() schema.Tag { return schema.CommandMoveBackward }
func (DebugMotors) Tag() schema.Tag  { return schema.CommandDebugMotors }
func (Configure) Tag() schema.Tag    { return schema.CommandConfigure }

func (TurnLeft) appendPayload(dst []byte) []byte     { return dst }
func (TurnRight) appendPayload(dst []byte) []byte    { return dst }
func (MoveForward) appendPayload(dst []byte) []byte  { return dst }
func (MoveBackward) appendPayload(dst []byte) []byte { return dst }
func (DebugMotors) appendPayload(dst []byte) []byte  { return dst }

func (c Configure) appendPayload(dst []byte) []byte {
	return appendFloat32(appendFloat32(dst, c.KP), c.KD)
}

func (TurnLeft) String() string     { return "turn_left" }
func (TurnRight) String() string    { return "turn_right" }
func (MoveForward) String() string  { return "move_forward" }
func (MoveBackward) String() string { return "move_backward" }
func (DebugMotors) String() string  { return "debug_motors" }

func (c Configure) String() string {
	return fmt.Sprintf("configure k_p=%g k_d=%g", c.KP, c.KD)
}

// ParseCommand builds a Command from an operator-facing name. Names accept either
// dashes or underscores. configure takes k_p and k_d as arguments.
func ParseCommand(name string, args ...string) (Command, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	var cmd Command
	switch key {
	case "turn-left", "left":
		cmd = TurnLeft{}
	case "turn-right", "right":
		cmd = TurnRight{}
	case "move-forward", "forward":
		cmd = MoveForward{}
	case "move-backward", "backward", "back":
		cmd = MoveBackward{}
	case "debug-motors", "debug":
		cmd = DebugMotors{}
	case "configure", "config":
		if len(args) != 2 {
			return nil, fmt.Errorf("protocol: configure needs k_p and k_d, got %d args", len(args))
		}
		kp, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 32)
		if err != nil {
			return nil, fmt.Errorf("protocol: parse k_p: %w", err)
		}
		kd, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 32)
		if err != nil {
			return nil, fmt.Errorf("protocol: parse k_d: %w", err)
		}
		return Configure{KP: float32(kp), KD: float32(kd)}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown command %q", name)
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("protocol: %s takes no arguments", key)
	}
	return cmd, nil
}
