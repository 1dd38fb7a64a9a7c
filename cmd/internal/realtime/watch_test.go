package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrauth/cmd/identity"
	"qrauth/cmd/internal/auth/session"
	loginv1 "qrauth/shared/contracts/login/v1"
)

type watchFixture struct {
	srv     *httptest.Server
	machine *session.Machine
	hub     *StatusHub
	alice   identity.User
}

func newWatchFixture(t *testing.T, cfg Config) *watchFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	users := identity.NewMemoryDirectory()
	require.NoError(t, identity.SeedDirectory(ctx, users, identity.DemoSeeds))
	alice, err := users.ByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	hub := NewStatusHub(log)
	machine := session.NewMachine(session.DefaultConfig(), session.NewMemoryStore(), users,
		session.WithLogger(log), session.WithObserver(hub))

	mux := http.NewServeMux()
	NewWatchGateway(log, cfg, hub, machine).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &watchFixture{srv: srv, machine: machine, hub: hub, alice: alice}
}

func testWatchConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	return cfg
}

func (f *watchFixture) dial(t *testing.T, sessionID, origin string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/auth/qr/watch"
	u.RawQuery = url.Values{"session": {sessionID}}.Encode()

	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	if subprotocols == nil {
		subprotocols = []string{wsSubprotocolV1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   h,
	})
}

func readStatus(t *testing.T, conn *websocket.Conn) loginv1.SessionStatusPayload {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var env loginv1.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	require.NoError(t, env.Validate())
	require.Equal(t, loginv1.TypeSessionStatus, env.Type)
	require.NotEmpty(t, env.ID)

	var p loginv1.SessionStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestWatch_PushesTransitionsUntilTerminal(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())
	ctx := context.Background()

	iss, err := f.machine.Issue(ctx, time.Minute, "")
	require.NoError(t, err)

	conn, resp, err := f.dial(t, iss.SessionID, "http://localhost")
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.CloseNow()

	first := readStatus(t, conn)
	assert.Equal(t, iss.SessionID, first.SessionID)
	assert.Equal(t, "pending", first.Status)
	assert.False(t, first.Terminal)
	assert.Nil(t, first.User)

	_, err = f.machine.Scan(ctx, iss.Token, "phone-1")
	require.NoError(t, err)
	assert.Equal(t, "scanned", readStatus(t, conn).Status)

	_, err = f.machine.Confirm(ctx, iss.Token, "phone-1", "alice@example.com")
	require.NoError(t, err)

	done := readStatus(t, conn)
	assert.Equal(t, "authenticated", done.Status)
	assert.True(t, done.Terminal)
	require.NotNil(t, done.User)
	assert.Equal(t, f.alice.ID, done.User.ID)
	assert.Equal(t, "alice@example.com", done.User.Email)

	expectClosed(t, conn)
	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_ReportsCancel(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())
	ctx := context.Background()

	iss, err := f.machine.Issue(ctx, time.Minute, "")
	require.NoError(t, err)

	conn, _, err := f.dial(t, iss.SessionID, "http://localhost")
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Equal(t, "pending", readStatus(t, conn).Status)

	_, err = f.machine.Cancel(ctx, iss.SessionID, iss.Token)
	require.NoError(t, err)

	got := readStatus(t, conn)
	assert.Equal(t, "cancelled", got.Status)
	assert.True(t, got.Terminal)
	expectClosed(t, conn)
}

func TestWatch_SurfacesLazyExpiry(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())

	iss, err := f.machine.Issue(context.Background(), 500*time.Millisecond, "")
	require.NoError(t, err)

	conn, _, err := f.dial(t, iss.SessionID, "http://localhost")
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Equal(t, "pending", readStatus(t, conn).Status)

	// Nothing transitions the record; the poll derives expiry on its own.
	got := readStatus(t, conn)
	assert.Equal(t, "expired", got.Status)
	assert.True(t, got.Terminal)
	expectClosed(t, conn)
}

func TestWatch_TerminalSessionClosesAfterFirstStatus(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())
	ctx := context.Background()

	iss, err := f.machine.Issue(ctx, time.Minute, f.alice.ID)
	require.NoError(t, err)
	_, err = f.machine.ConfirmDirect(ctx, iss.SessionID, iss.Token)
	require.NoError(t, err)

	conn, _, err := f.dial(t, iss.SessionID, "http://localhost")
	require.NoError(t, err)
	defer conn.CloseNow()

	got := readStatus(t, conn)
	assert.Equal(t, "authenticated", got.Status)
	require.NotNil(t, got.User)
	expectClosed(t, conn)
}

func TestWatch_HandshakeRejections(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())

	iss, err := f.machine.Issue(context.Background(), time.Minute, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		session string
		origin  string
		want    int
	}{
		{name: "unknown session", session: "missing", origin: "http://localhost", want: http.StatusNotFound},
		{name: "missing origin", session: iss.SessionID, origin: "", want: http.StatusForbidden},
		{name: "foreign origin", session: iss.SessionID, origin: "https://evil.example", want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := f.dial(t, tc.session, tc.origin)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}

	res, err := http.Get(f.srv.URL + "/auth/qr/watch")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWatch_RequiresSubprotocol(t *testing.T) {
	f := newWatchFixture(t, testWatchConfig())

	iss, err := f.machine.Issue(context.Background(), time.Minute, "")
	require.NoError(t, err)

	conn, _, err := f.dial(t, iss.SessionID, "http://localhost", []string{}...)
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusProtocolError, websocket.CloseStatus(err))
}
