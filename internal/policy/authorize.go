package policy

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SharedSecretFromRequest returns the credential presented as a bearer token
// or an X-API-Key header, bearer first.
func SharedSecretFromRequest(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// CheckSharedSecret compares in constant time. An empty expected secret
// disables the check.
func CheckSharedSecret(expected, presented string) bool {
	if expected == "" {
		return true
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// AuthorizeRequest reports whether r carries the configured shared secret.
func AuthorizeRequest(expected string, r *http.Request) bool {
	return CheckSharedSecret(expected, SharedSecretFromRequest(r))
}
