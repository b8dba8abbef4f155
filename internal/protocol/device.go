package protocol

// NotifySize is the fixed notification buffer the firmware sends over BLE.
const NotifySize = 20

// EncodeEvent returns the frame the device would send for e.
func EncodeEvent(e Event) []byte {
	dst := append(make([]byte, 0, 9), byte(e.Tag()))
	return e.appendPayload(dst)
}

// EncodeEventPadded zero-pads the frame for e to size bytes. Frames already longer
// than size are returned unpadded.
func EncodeEventPadded(e Event, size int) []byte {
	frame := EncodeEvent(e)
	if len(frame) >= size {
		return frame
	}
	out := make([]byte, size)
	copy(out, frame)
	return out
}
