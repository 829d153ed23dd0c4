// Package session owns one uSEQ connection lifecycle.
//
// Ownership boundary:
// - transport open/close and the Disconnected -> Connecting -> Connected state machine
// - the single read loop: chunk -> frame.Decoder -> dispatch
// - firmware handshake on connect
// - reconnect backoff primitives (used by supervisors, never by Session itself)
//
// Dispatch order matches wire order. Text replies route through
// command.Channel; samples route through telemetry.Registry.
package session
