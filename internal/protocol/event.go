package protocol

import (
	"fmt"

	"github.com/danmuck/ratlink/internal/protocol/schema"
)

// Event is one decoded device -> host message. The set of variants is closed: only
// types in this package implement it.
type Event interface {
	Tag() schema.Tag
	// Accept calls the handler method matching the concrete variant.
	Accept(h EventHandler)
	appendPayload(dst []byte) []byte
}

// EventHandler has one method per Event variant, so an implementation that compiles
// handles every event the device can send.
type EventHandler interface {
	OnCountUpdated(CountUpdated)
	OnTargetUpdated(TargetUpdated)
	OnGyroUpdated(GyroUpdated)
	OnConfigUpdated(ConfigUpdated)
	OnPidDebug(PidDebug)
}

// CountUpdated reports the wheel encoder counts.
type CountUpdated struct {
	Left  int32
	Right int32
}

// TargetUpdated reports the wheel encoder targets the motor loop is driving toward.
type TargetUpdated struct {
	Left  int32
	Right int32
}

// GyroUpdated reports raw gyroscope axes.
type GyroUpdated struct {
	X int16
	Y int16
	Z int16
}

// ConfigUpdated reports the PD controller gains currently in effect.
type ConfigUpdated struct {
	KP float32
	KD float32
}

// PidDebug marks a controller debug toggle. It has no payload.
type PidDebug struct{}

func (CountUpdated) Tag() schema.Tag  { return schema.EventCountUpdated }
func (TargetUpdated) Tag() schema.Tag { return schema.EventTargetUpdated }
func (GyroUpdated) Tag() schema.Tag   { return schema.EventGyroUpdated }
func (ConfigUpdated) Tag() schema.Tag { return schema.EventConfigUpdated }
func (PidDebug) Tag() schema.Tag      { return schema.EventPidDebug }

func (e CountUpdated) Accept(h EventHandler)  { h.OnCountUpdated(e) }
func (e TargetUpdated) Accept(h EventHandler) { h.OnTargetUpdated(e) }
func (e GyroUpdated) Accept(h EventHandler)   { h.OnGyroUpdated(e) }
func (e ConfigUpdated) Accept(h EventHandler) { h.OnConfigUpdated(e) }
func (e PidDebug) Accept(h EventHandler)      { h.OnPidDebug(e) }

func (e CountUpdated) appendPayload(dst []byte) []byte {
	return appendInt32(appendInt32(dst, e.Left), e.Right)
}

func (e TargetUpdated) appendPayload(dst []byte) []byte {
	return appendInt32(appendInt32(dst, e.Left), e.Right)
}

func (e GyroUpdated) appendPayload(dst []byte) []byte {
	return appendInt16(appendInt16(appendInt16(dst, e.X), e.Y), e.Z)
}

func (e ConfigUpdated) appendPayload(dst []byte) []byte {
	return appendFloat32(appendFloat32(dst, e.KP), e.KD)
}

func (PidDebug) appendPayload(dst []byte) []byte { return dst }

func (e CountUpdated) String() string {
	return fmt.Sprintf("count_updated left=%d right=%d", e.Left, e.Right)
}

func (e TargetUpdated) String() string {
	return fmt.Sprintf("target_updated left=%d right=%d", e.Left, e.Right)
}

func (e GyroUpdated) String() string {
	return fmt.Sprintf("gyro_updated x=%d y=%d z=%d", e.X, e.Y, e.Z)
}

func (e ConfigUpdated) String() string {
	return fmt.Sprintf("config_updated k_p=%g k_d=%g", e.KP, e.KD)
}

func (PidDebug) String() string { return "pid_debug" }
