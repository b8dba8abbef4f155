// Package session binds the frame codec to a transport channel.
//
// Ownership boundary:
// - decoding inbound frames into events, in delivery order
// - decode failure policy (log, count, drop; optionally close)
// - encoding and writing commands
// - opt-in reconnection with backoff (Redialer)
//
// The transport package owns connection state and inactivity detection; a session
// never retries a frame.
package session
