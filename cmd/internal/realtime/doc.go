// Package realtime pushes login session status to waiting clients over
// WebSocket.
//
// StatusHub observes the session state machine and fans each change out to
// the watchers of that session. WatchGateway serves GET /auth/qr/watch: it
// sends the current status on connect, forwards every change, re-derives the
// status on a poll interval so lazy expiry is surfaced, and closes the socket
// once the session reaches a terminal status.
package realtime
