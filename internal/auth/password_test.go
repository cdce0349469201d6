package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(bcrypt.MinCost)
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should return an error for passwords longer than 72 bytes")
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := ps.Verify(hash, "correct-horse-battery-staple"); err != nil {
		t.Errorf("Verify() should accept the correct password, got: %v", err)
	}

	err = ps.Verify(hash, "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() wrong password error = %v, want ErrInvalidCredentials", err)
	}

	if err := ps.Verify("not-a-valid-bcrypt-hash", "password"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() garbage hash error = %v, want a non-credential error", err)
	}
}

func TestCheckStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "abc", true},
		{"whitespace only", "          ", true},
		{"minimum length", "abcdefgh", false},
		{"too long", strings.Repeat("x", 73), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckStrength(tc.password)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckStrength(%q) error = %v, wantErr %v", tc.password, err, tc.wantErr)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Tenant@Example.COM "); got != "tenant@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
