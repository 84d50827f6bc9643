// Package idgen generates opaque, URL-safe identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a 32-character hex identifier from crypto/rand.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in a bad state
		panic("idgen: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns a new identifier with the given prefix, e.g. "alert_".
func WithPrefix(prefix string) string {
	return prefix + New()
}

// Convenience constructors for the identifier families used across the
// service. Keeping the prefixes in one place makes logs greppable.

func Transaction() string { return WithPrefix("txn_") }
func Alert() string       { return WithPrefix("alert_") }
func Webhook() string     { return WithPrefix("whk_") }
func Event() string       { return WithPrefix("evt_") }
