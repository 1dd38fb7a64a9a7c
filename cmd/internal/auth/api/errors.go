package authapi

import (
	"net/http"

	"qrauth/cmd/internal/auth/session"
)

type errorMapping struct {
	status int
	msg    string
}

var sessionErrors = map[string]errorMapping{
	"invalid_token":     {http.StatusNotFound, "token does not match any active login session"},
	"not_found":         {http.StatusNotFound, "login session not found"},
	"already_processed": {http.StatusConflict, "login session was already scanned"},
	"wrong_state":       {http.StatusConflict, "login session is not in a state that allows this action"},
	"identity_mismatch": {http.StatusConflict, "login session is bound to another user"},
	"unbound_session":   {http.StatusConflict, "login session has no bound user"},
	"expired":           {http.StatusGone, "login session expired"},
	"unknown_identity":  {http.StatusNotFound, "no user registered for this identity"},
	"conflict":          {http.StatusServiceUnavailable, "please retry"},
	"invalid_request":   {http.StatusBadRequest, "invalid request"},
}

// writeSessionError renders a state-machine error. It reports whether err
// mapped to a known kind; unknown errors are rendered as 500 and return false.
func writeSessionError(w http.ResponseWriter, err error) bool {
	code := session.Reason(err)
	m, ok := sessionErrors[code]
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return false
	}
	writeError(w, m.status, code, m.msg)
	return true
}
