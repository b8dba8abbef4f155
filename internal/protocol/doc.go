// Package protocol owns the robot wire contract.
//
// Ownership boundary:
// - byte cursor primitives
// - inbound event decoding (device -> host)
// - outbound command encoding (host -> device)
// - the mirrored device-side codec used by the simulator
//
// Every frame is one tag byte followed by a fixed, tag-implied payload. Multi-byte
// fields are little-endian. There is no length prefix; see package schema for the
// tag table.
package protocol
