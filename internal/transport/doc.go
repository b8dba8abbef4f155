// Package transport owns the bidirectional channel contract and its concrete links.
//
// Ownership boundary:
// - Channel interface and state machine (Conn)
// - inactivity monitor for links without an explicit disconnect signal
// - WebSocket, serial (BLE UART bridge) and in-memory pipe transports
//
// Transports move opaque frames. They never decode; package session binds a Channel
// to the protocol codec.
package transport
