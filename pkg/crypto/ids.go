package crypto

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// sessionIDLength gives 132 bits with the default nanoid alphabet.
const sessionIDLength = 22

// NewID returns a random UUID (v4) for users, accounts and verifications.
func NewID() string {
	return uuid.NewString()
}

// NewSessionID returns a URL-safe nanoid. Session ids are shown to their
// owner, so they are unrelated to the session token.
func NewSessionID() (string, error) {
	return gonanoid.New(sessionIDLength)
}
