package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrTooManyArgs   = errors.New("too many arguments. expected only 1")
	ErrEmptyToken    = errors.New("token and hash cannot be empty")
	ErrInvalidLength = errors.New("length must be positive")
)

const (
	DefaultTokenLength = 32 // 256 bits
	DefaultOTPLength   = 6

	otpAlphabet = "0123456789"
)

// TokenPair is a secret and the digest kept in storage.
type TokenPair struct {
	Token string // value returned to client
	Hash  string // value in storage
}

func generateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}

	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateHashedToken returns a URL-safe random token of byteLength bytes
// (DefaultTokenLength when omitted) and its SHA-256 digest.
func GenerateHashedToken(byteLength ...int) (*TokenPair, error) {
	if len(byteLength) > 1 {
		return nil, ErrTooManyArgs
	}

	length := DefaultTokenLength
	if len(byteLength) > 0 && byteLength[0] > 0 {
		length = byteLength[0]
	}

	token, err := generateToken(length)
	if err != nil {
		return nil, err
	}

	return &TokenPair{Token: token, Hash: HashToken(token)}, nil
}

// GenerateOTP returns a numeric one-time code of length digits and its digest.
func GenerateOTP(length int) (*TokenPair, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	code, err := gonanoid.Generate(otpAlphabet, length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}
	return &TokenPair{Token: code, Hash: HashToken(code)}, nil
}

// VerifyToken reports whether token hashes to storedHash.
func VerifyToken(token, storedHash string) (bool, error) {
	if token == "" || storedHash == "" {
		return false, ErrEmptyToken
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1, nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
