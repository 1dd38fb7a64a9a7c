package realtime

import (
	"sync"

	"qrauth/cmd/internal/auth/session"
)

// Watcher is one connected status-watch socket.
//
// Send is never closed by the hub so concurrent fan-out cannot panic;
// done signals shutdown instead. Close is idempotent.
type Watcher struct {
	SessionID string
	Send      chan session.AuthSession

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher constructs a Watcher with a bounded send queue.
func NewWatcher(sessionID string, queueSize int) *Watcher {
	if queueSize <= 0 {
		queueSize = defaultSendQueue
	}
	return &Watcher{
		SessionID: sessionID,
		Send:      make(chan session.AuthSession, queueSize),
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the watcher is shutting down.
func (w *Watcher) Done() <-chan struct{} {
	if w == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.done
}

// Close signals shutdown. It does not close Send.
func (w *Watcher) Close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.done)
	})
}
