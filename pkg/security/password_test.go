package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := security.HashPassword("", config.PasswordConfig{}); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"short", false},
		{"        ", false},
		{"long-enough", true},
		{strings.Repeat("x", security.MaxPasswordLength), true},
		{strings.Repeat("x", security.MaxPasswordLength+1), false},
		{"пароль-длинный", true},
	}
	for _, tc := range cases {
		err := security.CheckPasswordPolicy(tc.password)
		if tc.ok && err != nil {
			t.Fatalf("expected %q to pass, got %v", tc.password, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("expected %q to fail policy", tc.password)
		}
	}
}

func TestVerifyPasswordRejectsForeignFormats(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", config.PasswordConfig{})
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	tampered := []string{
		strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		strings.Replace(hash, "$v=19$", "$v=16$", 1),
		strings.Replace(hash, "m=", "x=", 1),
		hash[:strings.LastIndex(hash, "$")],
	}
	for _, encoded := range tampered {
		if _, err := security.VerifyPassword("very-secure-password", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestNeedsRehashTracksConfiguredCost(t *testing.T) {
	weak := config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashPassword("very-secure-password", weak)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if security.NeedsRehash(hash, weak) {
		t.Fatal("hash produced with current params should not need a rehash")
	}

	stronger := weak
	stronger.ArgonTime = 2
	if !security.NeedsRehash(hash, stronger) {
		t.Fatal("raising the iteration count should require a rehash")
	}
	if security.NeedsRehash("not-a-hash", stronger) {
		t.Fatal("unreadable hashes are never rehashed")
	}
}
