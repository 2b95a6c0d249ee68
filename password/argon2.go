package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	// MinPasswordBytes matches the signup form's minimum length.
	MinPasswordBytes = 8
	// MaxPasswordBytes bounds hashing cost for hostile input.
	MaxPasswordBytes = 1024

	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

var (
	// ErrTooShort is an exported constant or variable used by the password hasher.
	ErrTooShort = errors.New("password: shorter than minimum length")
	// ErrTooLong is an exported constant or variable used by the password hasher.
	ErrTooLong = errors.New("password: longer than maximum length")
	// ErrMalformedHash is an exported constant or variable used by the password hasher.
	ErrMalformedHash = errors.New("password: malformed PHC hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the OWASP-recommended Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate rejects parameters below the package minimums.
func (c Config) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return nil
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	config Config

	dummyOnce sync.Once
	dummy     string
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns the PHC encoding of password. Bytes are used exactly as given.
func (h *Hasher) Hash(password string) (string, error) {
	if err := checkLength(password); err != nil {
		return "", err
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.config.Memory, h.config.Time, h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A password outside the length
// bounds never matches.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if checkLength(password) != nil {
		return false, nil
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// VerifyDummy burns the same work as a real verification. Callers use it for
// unknown accounts so response time does not reveal which emails exist.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.Hash("portal-dummy-password")
	})
	if h.dummy != "" {
		_, _ = h.Verify(password, h.dummy)
	}
}

// NeedsRehash reports whether encoded was produced with weaker parameters than
// the hasher's.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.config.Memory > p.memory ||
		h.config.Time > p.time ||
		h.config.Parallelism > p.parallelism ||
		h.config.KeyLength != uint32(len(p.key)), nil
}

func checkLength(password string) error {
	switch {
	case len(password) < MinPasswordBytes:
		return ErrTooShort
	case len(password) > MaxPasswordBytes:
		return ErrTooLong
	}
	return nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	p := &phc{}
	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return nil, fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < 1 {
				return nil, fmt.Errorf("%w: time", ErrMalformedHash)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < 1 {
				return nil, fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			p.parallelism = uint8(v)
		default:
			return nil, fmt.Errorf("%w: parameter %q", ErrMalformedHash, name)
		}
		seen++
	}
	if seen != 3 {
		return nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || uint32(len(p.key)) < minKeyLength {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}
