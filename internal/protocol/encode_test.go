package protocol

import (
	"bytes"
	"testing"

	"github.com/danmuck/ratlink/internal/protocol/schema"
	"github.com/danmuck/ratlink/internal/testutil/testlog"
)

func TestEncodeMatchesWireTable(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		cmd  Command
		want []byte
	}{
		{TurnLeft{}, []byte{0x01}},
		{TurnRight{}, []byte{0x02}},
		{MoveForward{}, []byte{0x03}},
		{MoveBackward{}, []byte{0x04}},
		{DebugMotors{}, []byte{0x05}},
		{Configure{KP: 1.5, KD: 0.25}, []byte{0x06, 0x00, 0x00, 0xC0, 0x3F, 0x00, 0x00, 0x80, 0x3E}},
	}
	for _, tc := range cases {
		got := Encode(tc.cmd)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("%v: got % X want % X", tc.cmd, got, tc.want)
		}
		l, ok := schema.Lookup(schema.Outbound, tc.cmd.Tag())
		if !ok || l.FrameLen() != len(got) {
			t.Fatalf("%v: frame length %d disagrees with schema", tc.cmd, len(got))
		}
	}
}

func TestAppendEncodeKeepsPrefix(t *testing.T) {
	testlog.Start(t)
	got := AppendEncode([]byte{0xAA}, MoveForward{})
	if !bytes.Equal(got, []byte{0xAA, 0x03}) {
		t.Fatalf("got % X", got)
	}
}

func TestParseCommand(t *testing.T) {
	testlog.Start(t)
	cases := map[string]Command{
		"turn-left":     TurnLeft{},
		"TURN_RIGHT":    TurnRight{},
		"forward":       MoveForward{},
		"move_backward": MoveBackward{},
		"debug-motors":  DebugMotors{},
	}
	for name, want := range cases {
		got, err := ParseCommand(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: got %#v want %#v", name, got, want)
		}
	}
	cfg, err := ParseCommand("configure", "0.05", "0.001")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if cfg != DefaultConfigure() {
		t.Fatalf("unexpected configure: %#v", cfg)
	}
}

func TestParseCommandErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseCommand("jump"); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if _, err := ParseCommand("configure", "1"); err == nil {
		t.Fatalf("expected argument count error")
	}
	if _, err := ParseCommand("configure", "x", "1"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseCommand("left", "1"); err == nil {
		t.Fatalf("expected no-argument error")
	}
}
