package identity

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeEmail performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s (after trimming) is a syntactically valid address.
func ValidEmail(s string) bool {
	return validate.Var(strings.TrimSpace(s), "required,email,max=254") == nil
}

// defaultDisplayName derives a display name from the local part of an email.
func defaultDisplayName(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
