// Package mockbackend is a local stand-in for the email assistant backend.
//
// It serves every endpoint the terminal client uses, backed by a canned
// mailbox and keyword retrieval, so the client can be developed and
// demonstrated without the real service.
package mockbackend

import "time"

// Config is the mock backend configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Connected starts the server with an account already connected.
	Connected bool

	// Synced starts the server with the mailbox already synced and indexed.
	Synced bool

	// TokenDelay is the pause between streamed answer tokens.
	TokenDelay time.Duration

	// Mailbox replaces the built-in canned emails.
	Mailbox []Email
}
