// Package password hashes and verifies passwords with argon2id. Hashes
// are stored in PHC string format so the parameters travel with the
// hash and the work factor can be raised without invalidating existing
// credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 8
)

// ErrWeakPassword is returned by Hash for passwords below the minimum
// length. Content policy beyond length belongs to the caller.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLen)

// Config sets the argon2id work factor.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns moderate interactive-login parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a Hasher. Work factors below the
// package minimums are configuration errors, not silently raised.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	case cfg.Time < 1:
		return nil, errors.New("argon2 time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives an argon2id hash of password under a fresh random salt
// and returns it PHC-encoded.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt,
		h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.config.Memory, h.config.Time, h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the PHC-encoded hash. The
// comparison is constant time. Verification uses the parameters from
// the hash itself, so old hashes keep verifying after a config change.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt,
		timeCost, memory, parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether the hash was produced with a weaker work
// factor than the current config. Callers typically rehash on the next
// successful login.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	memory, timeCost, parallelism, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return memory < h.config.Memory ||
		timeCost < h.config.Time ||
		parallelism < h.config.Parallelism ||
		uint32(len(key)) != h.config.KeyLength, nil
}

func decode(encoded string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("invalid password hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("unsupported argon2 version")
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, errors.New("invalid password hash parameters")
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || uint32(len(salt)) < minSaltLength {
		return 0, 0, 0, nil, nil, errors.New("invalid password hash salt")
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, errors.New("invalid password hash key")
	}

	return memory, timeCost, parallelism, salt, key, nil
}
