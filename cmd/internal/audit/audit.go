// Package audit records login session events to an append-only trail.
package audit

import (
	"context"
	"strings"
	"time"
)

// Entry is one audit row.
type Entry struct {
	Action    string
	SessionID string
	UserID    string
	Reason    string
	IP        string
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// Sink accepts audit entries. Record must not block on I/O.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

type requestKey struct{}

type requestMeta struct {
	ip string
	ua string
}

// WithRequest attaches caller metadata that observers copy into entries.
func WithRequest(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestKey{}, requestMeta{
		ip: strings.TrimSpace(ip),
		ua: strings.TrimSpace(userAgent),
	})
}

func requestFrom(ctx context.Context) (ip, ua string) {
	if ctx == nil {
		return "", ""
	}
	m, _ := ctx.Value(requestKey{}).(requestMeta)
	return m.ip, m.ua
}
