package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

// Requirement: tokens carry the requested entropy and are URL-safe.
func TestGenerateToken_Length(t *testing.T) {
	tests := []struct {
		name           string
		byteLength     int
		expectedLength int
	}{
		{name: "zero uses default", byteLength: 0, expectedLength: DefaultTokenLength},
		{name: "negative uses default", byteLength: -1, expectedLength: DefaultTokenLength},
		{name: "16 bytes", byteLength: 16, expectedLength: 16},
		{name: "64 bytes", byteLength: 64, expectedLength: 64},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Act
			token, err := generateToken(test.byteLength)

			// Assert
			if err != nil {
				t.Fatalf("generateToken() error = %v", err)
			}
			decoded, err := base64.RawURLEncoding.DecodeString(token)
			if err != nil {
				t.Fatalf("failed to decode token: %v", err)
			}
			if len(decoded) != test.expectedLength {
				t.Errorf("token length = %d bytes, want %d", len(decoded), test.expectedLength)
			}
			if strings.ContainsAny(token, "+/= ") {
				t.Errorf("token contains URL-unsafe characters: %q", token)
			}
		})
	}
}

func TestGenerateHashedToken(t *testing.T) {
	// Act
	pair, err := GenerateHashedToken()

	// Assert
	if err != nil {
		t.Fatalf("GenerateHashedToken() error = %v", err)
	}
	if pair.Token == pair.Hash {
		t.Error("token and hash should differ")
	}
	if len(pair.Hash) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA256)", len(pair.Hash))
	}
	if _, err := hex.DecodeString(pair.Hash); err != nil {
		t.Errorf("hash is not valid hex: %v", err)
	}
	if HashToken(pair.Token) != pair.Hash {
		t.Error("hash does not match HashToken(token)")
	}

	if _, err := GenerateHashedToken(16, 32); err != ErrTooManyArgs {
		t.Errorf("GenerateHashedToken(16, 32) error = %v, want ErrTooManyArgs", err)
	}
}

func TestGenerateHashedToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pair, err := GenerateHashedToken()
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if seen[pair.Token] {
			t.Fatalf("duplicate token generated: %q", pair.Token)
		}
		seen[pair.Token] = true
	}
}

// Requirement: OTP codes are numeric with the requested number of digits.
func TestGenerateOTP(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "six digits", length: 6},
		{name: "eight digits", length: 8},
		{name: "zero length", length: 0, wantErr: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			pair, err := GenerateOTP(test.length)
			if (err != nil) != test.wantErr {
				t.Fatalf("GenerateOTP() error = %v, wantErr %v", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if len(pair.Token) != test.length {
				t.Errorf("code length = %d, want %d", len(pair.Token), test.length)
			}
			if strings.Trim(pair.Token, "0123456789") != "" {
				t.Errorf("code %q is not numeric", pair.Token)
			}
			if ok, _ := VerifyToken(pair.Token, pair.Hash); !ok {
				t.Error("code does not verify against its hash")
			}
		})
	}
}

func TestVerifyToken(t *testing.T) {
	pair, _ := GenerateHashedToken()

	tests := []struct {
		name    string
		token   string
		hash    string
		wantOk  bool
		wantErr bool
	}{
		{name: "correct token", token: pair.Token, hash: pair.Hash, wantOk: true},
		{name: "wrong token", token: "wrong_token_value", hash: pair.Hash},
		{name: "modified token", token: pair.Token[:len(pair.Token)-1] + "X", hash: pair.Hash},
		{name: "empty token", token: "", hash: pair.Hash, wantErr: true},
		{name: "empty hash", token: pair.Token, hash: "", wantErr: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ok, err := VerifyToken(test.token, test.hash)
			if (err != nil) != test.wantErr {
				t.Fatalf("VerifyToken() error = %v, wantErr %v", err, test.wantErr)
			}
			if ok != test.wantOk {
				t.Errorf("VerifyToken() = %v, want %v", ok, test.wantOk)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	a, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID() error = %v", err)
	}
	b, _ := NewSessionID()
	if len(a) != sessionIDLength || a == b {
		t.Errorf("unexpected ids %q %q", a, b)
	}
	if NewID() == NewID() {
		t.Error("NewID() returned duplicates")
	}
}
