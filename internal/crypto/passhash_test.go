package crypto

import (
	"bytes"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two RandBytes(%d) calls returned equal bytes", n)
	}
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	t.Parallel()

	h1, err := Light.HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := Light.HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword(2): %v", err)
	}
	if len(h1.Salt) != Light.SaltLen || len(h1.Key) != int(Light.KeyLen) {
		t.Fatalf("salt=%d key=%d", len(h1.Salt), len(h1.Key))
	}
	if bytes.Equal(h1.Salt, h2.Salt) || bytes.Equal(h1.Key, h2.Key) {
		t.Fatalf("same password must hash differently with fresh salts")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	h, err := Light.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !Light.Verify("correct horse battery staple", h) {
		t.Fatalf("Verify: expected true for correct password")
	}
	if Light.Verify("wrong", h) {
		t.Fatalf("Verify: expected false for wrong password")
	}
	if Light.Verify("", h) {
		t.Fatalf("Verify: expected false for empty password")
	}
	if Light.Verify("correct horse battery staple", Hash{Salt: h.Salt}) {
		t.Fatalf("Verify: expected false for empty stored key")
	}
	if Default.Verify("correct horse battery staple", h) {
		t.Fatalf("Verify: params are part of the hash")
	}
}
