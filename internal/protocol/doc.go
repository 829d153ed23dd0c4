// Package protocol holds the uSEQ serial protocol core.
//
// Ownership boundary:
// - ring: fixed-capacity sample history
// - frame: marker-delimited stream decoding and frame encoders
// - telemetry: per-channel sample registry and handlers
// - command: outbound code sanitizing and reply capture
// - session: connection lifecycle over a transport
package protocol
