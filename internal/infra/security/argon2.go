package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hashes use the PHC string format:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
const phcPrefix = "$argon2id$"

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

var b64 = base64.RawStdEncoding

// Argon2Config holds the Argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config matches the RFC 9106 second recommended option.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

func (cfg Argon2Config) validate() error {
	var problem string
	switch {
	case cfg.Memory < 8*1024:
		problem = "memory must be at least 8192 KiB"
	case cfg.Iterations == 0:
		problem = "iterations must be positive"
	case cfg.Parallelism == 0:
		problem = "parallelism must be positive"
	case cfg.SaltLength < 8:
		problem = "salt must be at least 8 bytes"
	case cfg.KeyLength < 16:
		problem = "key must be at least 16 bytes"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", errInvalidConfig, problem)
}

// Argon2Hasher hashes the bootstrap admin password and lock passwords.
type Argon2Hasher struct {
	cfg Argon2Config
}

func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Hash derives a key with a fresh random salt and encodes it with its parameters.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("argon2: password is empty")
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in encoded, so hashes
// made under older cost settings keep verifying.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	cfg, salt, want, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	var cfg Argon2Config
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return cfg, nil, nil, errInvalidHashFormat
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return cfg, nil, nil, errInvalidHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return cfg, nil, nil, errInvalidHashFormat
	}
	if version != argon2.Version {
		return cfg, nil, nil, fmt.Errorf("argon2: unsupported version %d", version)
	}
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil {
		return cfg, nil, nil, fmt.Errorf("%w: %v", errInvalidHashFormat, err)
	}

	salt, err := b64.DecodeString(fields[2])
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("argon2: decode salt: %w", err)
	}
	key, err := b64.DecodeString(fields[3])
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("argon2: decode key: %w", err)
	}
	cfg.SaltLength, cfg.KeyLength = uint32(len(salt)), uint32(len(key))
	if err := cfg.validate(); err != nil {
		return cfg, nil, nil, err
	}
	return cfg, salt, key, nil
}
