package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qrauth/cmd/identity"
	"qrauth/cmd/internal/audit"
	"qrauth/cmd/internal/auth/session"
	loginv1 "qrauth/shared/contracts/login/v1"
)

// Handler wires HTTP login endpoints to the session state machine and the
// user directory.
type Handler struct {
	log *slog.Logger
	cfg Config

	machine *session.Machine
	users   identity.Directory
	limiter Limiter

	baseURL string
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLimiter overrides the default in-memory limiter.
func WithLimiter(l Limiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || l == nil {
			return
		}
		h.limiter = l
	}
}

// WithBaseURL sets the public origin used in verify URLs and QR payloads.
func WithBaseURL(base string) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			h.baseURL = base
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, machine *session.Machine, users identity.Directory, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()

	h := &Handler{
		log:     log,
		cfg:     cfg,
		machine: machine,
		users:   users,
		baseURL: "http://127.0.0.1:8080",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if h.limiter == nil {
		h.limiter = NewMemoryLimiter(cfg.RateLimitEvents, cfg.RateLimitWindow)
	}
	return h
}

// Register wires login and user routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/qr", h.handleIssue)
	mux.HandleFunc("/auth/qr/scan", h.handleScan)
	mux.HandleFunc("/auth/qr/confirm", h.handleConfirm)
	mux.HandleFunc("/auth/qr/confirm-direct", h.handleConfirmDirect)
	mux.HandleFunc("/auth/qr/cancel", h.handleCancel)
	mux.HandleFunc("/auth/qr/status", h.handleStatus)
	mux.HandleFunc("/users", h.handleUsers)
	mux.HandleFunc("/users/lookup", h.handleUserLookup)
	if h.cfg.AdminEnabled {
		mux.HandleFunc("/admin/sessions", h.handleAdminSessions)
	}
}

// ---- handlers ----

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req issueRequest
	// An empty body issues an unbound session with the default TTL.
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	ctx := h.requestContext(r)

	var boundUserID string
	if email := strings.TrimSpace(req.Email); email != "" {
		u, err := h.users.ByEmail(ctx, email)
		if err != nil {
			if identity.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "unknown_identity", "no user registered for this identity")
				return
			}
			h.log.Error("auth.qr.issue.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		boundUserID = u.ID
	}

	issued, err := h.machine.Issue(ctx, time.Duration(req.TTLSeconds)*time.Second, boundUserID)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.issue.fail", "err", err)
		}
		return
	}

	verifyURL := loginv1.VerifyURL(h.baseURL, issued.Token, issued.SessionID)
	writeJSON(w, http.StatusCreated, issueResponse{
		SessionID: issued.SessionID,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		VerifyURL: verifyURL,
		QR: loginv1.QRPayload{
			Token:   issued.Token,
			URL:     verifyURL,
			Exp:     issued.ExpiresAt.UnixMilli(),
			Type:    loginv1.QRTypeAuth,
			Session: issued.SessionID,
		},
	})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r, "scan") {
		return
	}

	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.machine.Scan(h.requestContext(r), req.Token, req.DeviceID)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.scan.fail", "err", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{SessionID: sess.ID, Status: sess.Status.String()})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r, "confirm") {
		return
	}

	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := h.requestContext(r)
	user, err := h.machine.Confirm(ctx, req.Token, req.DeviceID, req.Email)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.confirm.fail", "err", err)
		}
		return
	}

	// The record outlives the transition until swept; recover its id for the response.
	var sessionID string
	if sess, err := h.machine.SessionByToken(ctx, req.Token); err == nil {
		sessionID = sess.ID
	}

	writeJSON(w, http.StatusOK, confirmResponse{SessionID: sessionID, User: toUserResponse(user)})
}

func (h *Handler) handleConfirmDirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r, "confirm_direct") {
		return
	}

	var req sessionTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.machine.ConfirmDirect(h.requestContext(r), req.SessionID, req.Token)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.confirm_direct.fail", "err", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, confirmDirectResponse{SessionID: sess.ID, Confirmed: true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.allow(w, r, "cancel") {
		return
	}

	var req sessionTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.machine.Cancel(h.requestContext(r), req.SessionID, req.Token)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.cancel.fail", "err", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, cancelResponse{SessionID: sess.ID, Status: sess.Status.String()})
}

// handleStatus is the polling endpoint: derived status plus the user once authenticated.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("session"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session is required")
		return
	}

	ctx := r.Context()
	sess, err := h.machine.Session(ctx, id)
	if err != nil {
		if !writeSessionError(w, err) {
			h.log.Error("auth.qr.status.fail", "err", err)
		}
		return
	}

	resp := statusResponse{
		SessionID: sess.ID,
		Status:    sess.Status.String(),
		ExpiresAt: sess.ExpiresAt,
	}
	if sess.Status == session.StatusAuthenticated {
		user, ok, err := h.machine.CheckAuthenticated(ctx, id)
		if err != nil {
			if !writeSessionError(w, err) {
				h.log.Error("auth.qr.status.user.fail", "err", err)
			}
			return
		}
		if ok {
			ur := toUserResponse(user)
			resp.Authenticated = true
			resp.User = &ur
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := h.users.All(r.Context())
		if err != nil {
			h.log.Error("users.list.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		writeJSON(w, http.StatusOK, usersResponse{Users: out})

	case http.MethodPost:
		var req registerUserRequest
		if !h.decode(w, r, &req) {
			return
		}
		u, err := h.users.RegisterOrGet(r.Context(), req.Email, req.DisplayName)
		if err != nil {
			if identity.IsInvalidInput(err) {
				writeError(w, http.StatusBadRequest, "invalid_request", "valid email is required")
				return
			}
			h.log.Error("users.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	u, err := h.users.ByEmail(r.Context(), email)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("users.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	list, err := h.machine.List(r.Context())
	if err != nil {
		h.log.Error("admin.sessions.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]adminSessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toAdminSession(s))
	}
	writeJSON(w, http.StatusOK, adminSessionsResponse{Sessions: out})
}

// ---- helpers ----

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

// allow applies the per-IP limiter. Limiter failures fail open.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, action string) bool {
	key := action + ":" + ipString(ClientIP(r, h.cfg.TrustProxy))

	ok, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		h.log.Warn("auth.ratelimit.fail", "err", err, "action", action)
		return true
	}
	if !ok {
		h.log.Info("auth.ratelimit.block", "action", action, "key", key)
		writeRateLimited(w, retryAfter)
		return false
	}
	return true
}

// requestContext carries caller metadata to audit observers.
func (h *Handler) requestContext(r *http.Request) context.Context {
	ip := ClientIP(r, h.cfg.TrustProxy)
	var ipVal string
	if ip != nil {
		ipVal = ip.String()
	}
	return audit.WithRequest(r.Context(), ipVal, r.UserAgent())
}
