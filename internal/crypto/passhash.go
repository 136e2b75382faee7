// Package crypto hashes and verifies the account passwords held by the
// in-process backend.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost settings.
type Params struct {
	Time      uint32 // iterations
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// Default is tuned for a real server.
var Default = Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// Light keeps test and dev logins fast.
var Light = Params{Time: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32, SaltLen: 16}

// Hash is a stored password: salt plus derived key.
type Hash struct {
	Salt []byte
	Key  []byte
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword derives the key for password with a fresh random salt.
func (p Params) HashPassword(password string) (Hash, error) {
	salt, err := RandBytes(p.SaltLen)
	if err != nil {
		return Hash{}, err
	}
	return Hash{Salt: salt, Key: p.derive([]byte(password), salt)}, nil
}

// Verify reports whether password matches h, in constant time.
func (p Params) Verify(password string, h Hash) bool {
	if len(h.Key) == 0 {
		return false
	}
	got := p.derive([]byte(password), h.Salt)
	return subtle.ConstantTimeCompare(got, h.Key) == 1
}

func (p Params) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
}
