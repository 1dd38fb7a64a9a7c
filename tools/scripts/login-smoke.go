// Package main provides a CI-friendly smoke test for a running qrauth server.
//
// It validates:
//   - issue returns a well-formed QR payload
//   - the watch socket handshakes with the login subprotocol
//   - scan and confirm are pushed as session_status envelopes
//   - the socket closes normally once the session is authenticated
//   - the polling endpoint reports the authenticated user
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	loginv1 "qrauth/shared/contracts/login/v1"
)

const defaultSubprotocol = "qrauth.login.v1"

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header for the watch handshake")
		email   = flag.String("email", "alice@example.com", "Registered identity that confirms the login")
		device  = flag.String("device", "smoke-phone", "Scanning device id")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(*baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url: %q", *baseURL)
	}
	logf := func(format string, args ...any) {
		if *verbose {
			fmt.Printf(format+"\n", args...)
		}
	}

	ctx := context.Background()
	client := &http.Client{Timeout: *timeout}

	// Make sure the identity exists; registerOrGet is idempotent.
	mustPost(client, *baseURL+"/users", map[string]string{"email": *email, "display_name": "Smoke Tester"}, http.StatusOK, nil)

	var issued struct {
		SessionID string            `json:"session_id"`
		Token     string            `json:"token"`
		QR        loginv1.QRPayload `json:"qr"`
	}
	mustPost(client, *baseURL+"/auth/qr", map[string]any{"ttl_seconds": 60}, http.StatusCreated, &issued)
	if err := issued.QR.Validate(); err != nil {
		fatalf("issue: bad qr payload: %v", err)
	}
	logf("issued session=%s", issued.SessionID)

	conn := mustWatch(ctx, base, issued.SessionID, *origin, *timeout)
	defer func() { _ = conn.CloseNow() }()

	expectStatus(ctx, conn, "pending", *timeout)
	logf("watch: pending")

	mustPost(client, *baseURL+"/auth/qr/scan", map[string]string{"token": issued.Token, "device_id": *device}, http.StatusOK, nil)
	expectStatus(ctx, conn, "scanned", *timeout)
	logf("watch: scanned")

	mustPost(client, *baseURL+"/auth/qr/confirm", map[string]string{"token": issued.Token, "device_id": *device, "email": *email}, http.StatusOK, nil)
	final := expectStatus(ctx, conn, "authenticated", *timeout)
	if final.User == nil || !strings.EqualFold(final.User.Email, *email) {
		fatalf("watch: authenticated without expected user: %+v", final.User)
	}
	logf("watch: authenticated as %s", final.User.Email)

	readCtx, cancel := context.WithTimeout(ctx, *timeout)
	_, _, err = conn.Read(readCtx)
	cancel()
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		fatalf("watch: expected normal closure after terminal status, got %v", err)
	}

	res, err := client.Get(*baseURL + "/auth/qr/status?session=" + url.QueryEscape(issued.SessionID))
	if err != nil {
		fatalf("status: %v", err)
	}
	defer res.Body.Close()
	var st struct {
		Status        string `json:"status"`
		Authenticated bool   `json:"authenticated"`
	}
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil || !st.Authenticated {
		fatalf("status: expected authenticated, got %+v (err=%v)", st, err)
	}

	fmt.Println("OK")
}

func mustPost(client *http.Client, endpoint string, body any, wantStatus int, out any) {
	raw, err := json.Marshal(body)
	if err != nil {
		fatalf("encode %s: %v", endpoint, err)
	}
	res, err := client.Post(endpoint, "application/json", bytes.NewReader(raw))
	if err != nil {
		fatalf("POST %s: %v", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		var e struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		fatalf("POST %s: status=%d code=%q want=%d", endpoint, res.StatusCode, e.Error.Code, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			fatalf("decode %s: %v", endpoint, err)
		}
	}
}

func mustWatch(parent context.Context, base *url.URL, sessionID, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/auth/qr/watch"
	u.RawQuery = url.Values{"session": {sessionID}}.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("watch connect: %v", err)
	}
	if got := conn.Subprotocol(); got != defaultSubprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, defaultSubprotocol)
	}
	return conn
}

func expectStatus(parent context.Context, conn *websocket.Conn, want string, stepTimeout time.Duration) loginv1.SessionStatusPayload {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var env loginv1.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("watch: timed out waiting for %q", want)
		}
		fatalf("watch: read: %v", err)
	}
	if err := env.Validate(); err != nil {
		fatalf("watch: invalid envelope: %v", err)
	}
	if env.Type != loginv1.TypeSessionStatus {
		fatalf("watch: unexpected envelope type %q", env.Type)
	}

	var p loginv1.SessionStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("watch: decode payload: %v", err)
	}
	if p.Status != want {
		fatalf("watch: status=%q want=%q", p.Status, want)
	}
	return p
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
