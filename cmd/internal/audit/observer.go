package audit

import (
	"context"

	"qrauth/cmd/internal/auth/session"
)

// SessionObserver turns state-machine events into audit entries.
type SessionObserver struct {
	sink Sink
}

// NewSessionObserver wraps sink; a nil sink yields Nop.
func NewSessionObserver(sink Sink) *SessionObserver {
	if sink == nil {
		sink = Nop{}
	}
	return &SessionObserver{sink: sink}
}

func (o *SessionObserver) Observe(ctx context.Context, ev session.Event) {
	ip, ua := requestFrom(ctx)

	e := Entry{
		Action:    "auth.qr." + string(ev.Kind),
		SessionID: ev.Session.ID,
		UserID:    ev.Session.UserID,
		IP:        ip,
		UserAgent: ua,
		At:        ev.At,
	}

	switch ev.Kind {
	case session.EventRejected:
		e.Reason = session.Reason(ev.Err)
		e.Meta = map[string]any{"op": ev.Op}
	case session.EventSwept:
		e.Meta = map[string]any{"count": ev.Count}
	case session.EventScanned, session.EventAuthenticated:
		if ev.Session.DeviceID != "" {
			e.Meta = map[string]any{"device_id": ev.Session.DeviceID}
		}
	}

	o.sink.Record(ctx, e)
}

var _ session.Observer = (*SessionObserver)(nil)
