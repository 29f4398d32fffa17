package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	h, err := NewArgon2Hasher(Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return h
}

func TestArgon2HashAndVerify(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("Tr0ub4dor&3", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestArgon2VerifyRejectsMalformedHash(t *testing.T) {
	h := testHasher(t)
	if _, err := h.Verify("secret", "salt:hash"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected errInvalidHashFormat, got %v", err)
	}
	if _, err := h.Verify("secret", "$argon2id$v=19$m=8192,t=1$c2FsdHNhbHQ$aGFzaA"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected errInvalidHashFormat for missing parallelism, got %v", err)
	}
	if _, err := h.Verify("secret", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaA"); err == nil {
		t.Fatal("expected version 16 to be rejected")
	}
	if ok, err := h.Verify("", "anything"); ok || err != nil {
		t.Fatalf("empty password must not match, got ok=%v err=%v", ok, err)
	}
}

func TestArgon2VerifyUsesEncodedParameters(t *testing.T) {
	old := testHasher(t)
	encoded, err := old.Hash("rotate-me-9137")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	stronger, err := NewArgon2Hasher(Argon2Config{Memory: 16 * 1024, Iterations: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	if ok, err := stronger.Verify("rotate-me-9137", encoded); err != nil || !ok {
		t.Fatalf("expected hash from older parameters to verify, got ok=%v err=%v", ok, err)
	}
}

func TestNewArgon2HasherValidatesConfig(t *testing.T) {
	if _, err := NewArgon2Hasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected errInvalidConfig, got %v", err)
	}
}

func TestRandomIntInRangeStaysInBounds(t *testing.T) {
	for i := 0; i < 500; i++ {
		n, err := RandomIntInRange(100000, 999999)
		if err != nil {
			t.Fatalf("RandomIntInRange returned error: %v", err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("value %d out of range", n)
		}
	}
	if _, err := RandomIntInRange(5, 1); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestHMACSignerRoundTrip(t *testing.T) {
	signer, err := NewHMACSigner("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewHMACSigner returned error: %v", err)
	}

	now := time.Now()
	token, err := signer.Sign(jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	var claims jwt.RegisteredClaims
	if err := signer.Parse(token, &claims); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "admin" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}

	other, _ := NewHMACSigner("fedcba9876543210fedcba9876543210")
	if err := other.Parse(token, &jwt.RegisteredClaims{}); err == nil {
		t.Fatal("expected signature failure with a different secret")
	}
}

func TestHMACSignerRejectsShortSecret(t *testing.T) {
	if _, err := NewHMACSigner("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}
