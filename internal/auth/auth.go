// Package auth is the shared-secret gate for the control API. The server
// secret is compared against the client-supplied X-API-Key header in
// constant time. The gate fails closed: an unconfigured secret rejects all
// traffic.
package auth

import (
	"crypto/subtle"
	"os"
)

// Header carries the client key.
const Header = "X-API-Key"

// Kind distinguishes failure modes for logs; the client only sees the
// message.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindMissing       Kind = "missing"
	KindInvalid       Kind = "invalid"
)

// Error is an authentication failure. All kinds map to HTTP 403.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Gate validates client keys against the configured secret.
type Gate struct {
	secret string
}

// NewGate creates a gate with the given secret. Empty means unconfigured.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// FromEnv reads the secret from SICHTER_API_KEY.
func FromEnv() *Gate {
	return NewGate(os.Getenv("SICHTER_API_KEY"))
}

// Check validates a provided key. The comparison runs in constant time so
// timing does not reveal the position of the first mismatching byte.
func (g *Gate) Check(provided string) *Error {
	if g.secret == "" {
		return &Error{Kind: KindNotConfigured, Message: "API Key is not configured on server"}
	}
	if provided == "" {
		return &Error{Kind: KindMissing, Message: "API Key is missing"}
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(g.secret)) != 1 {
		return &Error{Kind: KindInvalid, Message: "Invalid API Key"}
	}
	return nil
}
