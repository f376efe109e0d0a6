// Package bridge relays market snapshots from a trading host to an external
// controller and carries trade instructions back.
//
// The host side runs a Connector whose lifecycle mirrors the host plugin hooks:
//   - Start opens the channel (startup hook)
//   - Publish sends one snapshot per bar and Poll drains queued instructions (bar hook)
//   - Close says goodbye and releases the transport (termination hook)
//
// The controller side runs a Server that hands each snapshot to a Handler and
// writes the returned instructions back on the same session.
//
// Frames are JSON envelopes. Stream transports (tcp, unix sockets) delimit them
// with a newline; the websocket transport sends one text message per frame.
package bridge
