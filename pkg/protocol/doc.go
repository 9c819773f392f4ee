// Package protocol implements the binary wire protocol between the thin
// browser client and a hosted page.
//
// Every message travels in one websocket binary message holding one frame:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (2 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameEvent (0x01): Client → Server DOM events, addressed by token and path
//   - FrameControl (0x02): Boot, Ping/Pong and Close
//   - FrameAck (0x03): Server → Client receipt for an event
//   - FrameError (0x04): Error message
//
// Payloads are built from unsigned varints and length-prefixed strings.
package protocol
