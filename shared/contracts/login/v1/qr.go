package v1

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// QRTypeAuth marks a QR payload as a login request.
const QRTypeAuth = "auth"

// QRPayload is the JSON document encoded into the login QR code.
// Exp is the expiry as Unix milliseconds.
type QRPayload struct {
	Token   string `json:"token"`
	URL     string `json:"url"`
	Exp     int64  `json:"exp"`
	Type    string `json:"type"`
	Session string `json:"session"`
}

// JSON returns the compact encoding rendered into the QR image.
func (p QRPayload) JSON() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate checks that all fields are present and the type is QRTypeAuth.
func (p QRPayload) Validate() error {
	switch {
	case p.Type != QRTypeAuth:
		return errors.New("qr: unsupported type")
	case strings.TrimSpace(p.Token) == "":
		return errors.New("qr: missing token")
	case strings.TrimSpace(p.Session) == "":
		return errors.New("qr: missing session")
	case strings.TrimSpace(p.URL) == "":
		return errors.New("qr: missing url")
	case p.Exp <= 0:
		return errors.New("qr: missing exp")
	}
	return nil
}

// ParseQRPayload decodes and validates a scanned payload.
func ParseQRPayload(s string) (QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return QRPayload{}, err
	}
	if err := p.Validate(); err != nil {
		return QRPayload{}, err
	}
	return p, nil
}

// VerifyURL builds "<base>/verify?token=...&session=..." with both values escaped.
func VerifyURL(base, token, session string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("session", session)
	return strings.TrimRight(base, "/") + "/verify?" + q.Encode()
}
