package realtime

import (
	"context"
	"log/slog"
	"sync"

	"qrauth/cmd/internal/auth/session"
)

// StatusHub fans session state changes out to the watchers of each session.
// It implements session.Observer and never blocks the operation that
// produced the event: a watcher whose queue is full misses the update and
// catches up on its next poll.
type StatusHub struct {
	log *slog.Logger

	mu       sync.RWMutex
	watchers map[string]map[*Watcher]struct{}
}

// NewStatusHub constructs a StatusHub.
func NewStatusHub(log *slog.Logger) *StatusHub {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHub{
		log:      log,
		watchers: make(map[string]map[*Watcher]struct{}),
	}
}

// Subscribe registers w for updates to w.SessionID.
func (h *StatusHub) Subscribe(w *Watcher) {
	if h == nil || w == nil || w.SessionID == "" {
		return
	}

	h.mu.Lock()
	set, ok := h.watchers[w.SessionID]
	if !ok {
		set = make(map[*Watcher]struct{})
		h.watchers[w.SessionID] = set
	}
	set[w] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("watch.subscribe", "session_id", w.SessionID)
}

// Unsubscribe removes w and then signals its shutdown.
func (h *StatusHub) Unsubscribe(w *Watcher) {
	if h == nil || w == nil {
		return
	}

	h.mu.Lock()
	if set, ok := h.watchers[w.SessionID]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(h.watchers, w.SessionID)
		}
	}
	h.mu.Unlock()

	// Removed before Close so a concurrent publish never targets a closing watcher.
	w.Close()

	h.log.Debug("watch.unsubscribe", "session_id", w.SessionID)
}

// Watchers returns the number of watchers subscribed to sessionID.
func (h *StatusHub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[sessionID])
}

// Len returns the total number of subscribed watchers.
func (h *StatusHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.watchers {
		n += len(set)
	}
	return n
}

// Observe implements session.Observer.
func (h *StatusHub) Observe(_ context.Context, ev session.Event) {
	switch ev.Kind {
	case session.EventScanned, session.EventAuthenticated, session.EventCancelled, session.EventExpired:
	default:
		return
	}
	if ev.Session.ID == "" {
		return
	}
	h.Publish(ev.Session)
}

// Publish delivers snapshot to every watcher of snapshot.ID without blocking.
func (h *StatusHub) Publish(snapshot session.AuthSession) {
	if h == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for w := range h.watchers[snapshot.ID] {
		select {
		case <-w.Done():
			continue
		default:
		}

		select {
		case w.Send <- snapshot:
		default:
			h.log.Debug("watch.drop", "session_id", snapshot.ID)
		}
	}
}

var _ session.Observer = (*StatusHub)(nil)
