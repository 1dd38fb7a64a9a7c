package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"qrauth/cmd/identity"
	"qrauth/cmd/internal/auth/session"
	loginv1 "qrauth/shared/contracts/login/v1"
)

// SessionReader is the read side of the state machine the gateway needs.
type SessionReader interface {
	Session(ctx context.Context, sessionID string) (session.AuthSession, error)
	CheckAuthenticated(ctx context.Context, sessionID string) (identity.User, bool, error)
}

// WatchGateway serves the status-watch WebSocket endpoint.
type WatchGateway struct {
	log      *slog.Logger
	cfg      Config
	hub      *StatusHub
	sessions SessionReader

	// Derived for websocket.Accept, which authorizes cross-origin requests
	// only against OriginPatterns.
	originPatterns []string

	now func() time.Time
}

// NewWatchGateway constructs a gateway. A nil hub yields one that only
// reports status changes found by polling.
func NewWatchGateway(log *slog.Logger, cfg Config, hub *StatusHub, sessions SessionReader) *WatchGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewStatusHub(log)
	}
	cfg = cfg.normalized()
	return &WatchGateway{
		log:            log,
		cfg:            cfg,
		hub:            hub,
		sessions:       sessions,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts the watch endpoint.
func (g *WatchGateway) Register(mux *http.ServeMux) {
	if g == nil || mux == nil {
		return
	}
	mux.Handle("/auth/qr/watch", g)
}

func (g *WatchGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("watch.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	current, err := g.sessions.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "login session not found", http.StatusNotFound)
			return
		}
		g.log.Error("watch.lookup.fail", "session_id", sessionID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("watch.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("watch.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	watcher := NewWatcher(sessionID, g.cfg.SendQueue)
	g.hub.Subscribe(watcher)
	defer g.hub.Unsubscribe(watcher)

	// Clients never send data; CloseRead services control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	g.log.Info("watch.open", "session_id", sessionID)
	code, reason := g.run(ctx, conn, watcher, current)
	g.log.Info("watch.close", "session_id", sessionID, "reason", reason)
	_ = conn.Close(code, reason)
}

// run pushes status envelopes until the session is terminal or the socket
// goes away. It reports the close code and reason.
func (g *WatchGateway) run(ctx context.Context, conn *websocket.Conn, w *Watcher, initial session.AuthSession) (websocket.StatusCode, string) {
	last := initial
	if err := g.push(ctx, conn, last); err != nil {
		return websocket.StatusAbnormalClosure, "write failed"
	}
	if last.Status.Terminal() {
		return websocket.StatusNormalClosure, "session " + last.Status.String()
	}

	poll := time.NewTicker(g.cfg.PollInterval)
	defer poll.Stop()

	heartbeat := time.NewTicker(g.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	failures := 0
	for {
		var next session.AuthSession
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "context done"
		case <-w.Done():
			return websocket.StatusGoingAway, "unsubscribed"

		case snap := <-w.Send:
			next = g.resolve(ctx, w.SessionID, last, &snap)

		case <-poll.C:
			next = g.resolve(ctx, w.SessionID, last, nil)

		case <-heartbeat.C:
			hbCtx, cancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			cancel()
			if err != nil {
				failures++
				g.log.Info("watch.ping.fail", "session_id", w.SessionID, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					return websocket.StatusGoingAway, "heartbeat failed"
				}
				continue
			}
			failures = 0
			continue
		}

		if next.Status == last.Status {
			continue
		}
		last = next
		if err := g.push(ctx, conn, last); err != nil {
			g.log.Info("watch.write.fail", "session_id", w.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
			return websocket.StatusAbnormalClosure, "write failed"
		}
		if last.Status.Terminal() {
			return websocket.StatusNormalClosure, "session " + last.Status.String()
		}
	}
}

// resolve re-derives the session's status. A vanished record was either
// cancelled (the hub snapshot says so) or swept after expiry.
func (g *WatchGateway) resolve(ctx context.Context, id string, last session.AuthSession, snap *session.AuthSession) session.AuthSession {
	cur, err := g.sessions.Session(ctx, id)
	if err == nil {
		return cur
	}
	if !errors.Is(err, session.ErrNotFound) {
		g.log.Warn("watch.lookup.fail", "session_id", id, "err", err)
		return last
	}

	if snap != nil && snap.Status.Terminal() {
		out := last
		out.Status = snap.Status
		return out
	}
	out := last
	if last.ExpiredAt(g.now()) {
		out.Status = session.StatusExpired
	} else {
		out.Status = session.StatusCancelled
	}
	return out
}

func (g *WatchGateway) push(ctx context.Context, conn *websocket.Conn, s session.AuthSession) error {
	payload := loginv1.SessionStatusPayload{
		SessionID: s.ID,
		Status:    s.Status.String(),
		ExpiresAt: s.ExpiresAt,
		Terminal:  s.Status.Terminal(),
	}
	if s.Status == session.StatusAuthenticated {
		if u, ok, err := g.sessions.CheckAuthenticated(ctx, s.ID); err == nil && ok {
			payload.User = &loginv1.UserPayload{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
		}
	}

	now := g.now()
	env, err := loginv1.NewEnvelope(loginv1.TypeSessionStatus, NewEnvelopeID(now), now, payload)
	if err != nil {
		return fmt.Errorf("watch: encode status: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, env)
}

// ---- origin policy ----

func (g *WatchGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Host match ignores scheme and port.
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns maps the allowlist to the host patterns
// websocket.Accept matches against.
func deriveOriginPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
