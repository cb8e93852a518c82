// Package relay implements the broadcast relay: every frame read from one
// connected client is queued for delivery to the connected clients.
//
// The package implements:
//   - Listener: accepts stream connections and attaches a Session for each
//   - Session: owns one connection; an independent read loop reports frames
//     to the hub and a write loop drains the session's Outbox in order
//   - Hub: membership set and broadcast coordinator, run by one goroutine
//     fed through a single FIFO event channel
//   - Outbox: per-destination queue, unbounded or capped with an overflow policy
//   - Server: listener plus hub, with bounded drain on shutdown
//
// Key behaviors:
//   - A slow client only grows its own queue; other clients are unaffected
//   - Each session leaves the hub exactly once, whichever loop fails first
//   - Frames from one client reach each other client in the order they were read
//   - Clients receive only frames read after they joined
//   - Shutdown stops reads, flushes queued writes and force-closes at the deadline
package relay
