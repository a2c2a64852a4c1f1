package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHashFormat    = errors.New("invalid hash format")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrIncompatibleVersion  = errors.New("incompatible argon2 version")
)

const argon2idID = "argon2id"

type PasswordHandler interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

var _ PasswordHandler = (*Argon2)(nil)

// Argon2 hashes passwords with argon2id. SaltLength only matters when
// hashing; Verify reads everything else from the encoded hash.
type Argon2 struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewArgon2 returns the OWASP baseline for argon2id.
//
// @ref https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
func NewArgon2() *Argon2 {
	return &Argon2{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// encodedHash is the parsed form of
// $argon2id$v=<version>$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>
type encodedHash struct {
	params Argon2
	salt   []byte
	key    []byte
}

func (h encodedHash) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idID, argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (a *Argon2) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)
}

func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return encodedHash{params: *a, salt: salt, key: a.derive(password, salt)}.String(), nil
}

func (a *Argon2) Verify(password, hash string) (bool, error) {
	h, err := parseEncodedHash(hash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.params.derive(password, h.salt)) == 1, nil
}

func parseEncodedHash(s string) (encodedHash, error) {
	var h encodedHash

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, ErrInvalidHashFormat
	}
	id, version, costs, salt, key := fields[1], fields[2], fields[3], fields[4], fields[5]

	if id != argon2idID {
		return h, ErrUnsupportedAlgorithm
	}

	var v int
	if _, err := fmt.Sscanf(version, "v=%d", &v); err != nil {
		return h, fmt.Errorf("invalid version: %w", err)
	}
	if v != argon2.Version {
		return h, ErrIncompatibleVersion
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(costs, "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &parallelism); err != nil {
		return h, fmt.Errorf("invalid parameters: %w", err)
	}
	if parallelism == 0 || parallelism > 255 {
		return h, fmt.Errorf("%w: parallelism %d", ErrInvalidHashFormat, parallelism)
	}
	h.params.Parallelism = uint8(parallelism)

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(salt); err != nil {
		return h, fmt.Errorf("invalid salt encoding: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(key); err != nil {
		return h, fmt.Errorf("invalid hash encoding: %w", err)
	}
	h.params.KeyLength = uint32(len(h.key))

	return h, nil
}
