package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const maxBcryptPassword = 72

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = stderrors.New("password does not match")

// hasher hashes and verifies passwords.
type hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type bcryptHasher struct{ cost int }

func (h bcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxBcryptPassword {
		return "", fmt.Errorf("password longer than %d bytes", maxBcryptPassword)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

func (h bcryptHasher) Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// argon2Hasher encodes hashes as $argon2id$v=19$m=..,t=..,p=..$salt$key.
type argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

func newArgon2Hasher() argon2Hasher {
	return argon2Hasher{time: 1, memory: 64 * 1024, threads: 4}
}

func (h argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h argon2Hasher) Verify(password, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return stderrors.New("malformed argon2id hash")
	}
	var (
		memory, iterations uint32
		threads            uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return fmt.Errorf("argon2id parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("argon2id salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("argon2id key: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// hasherFor picks the scheme used for new hashes. Verification picks by
// the hash prefix, so switching schemes keeps old hashes valid.
func hasherFor(s Settings) hasher {
	if s.Hasher == HasherArgon2 {
		return newArgon2Hasher()
	}
	return bcryptHasher{cost: s.BcryptCost}
}

func verifierFor(hash string, s Settings) hasher {
	if strings.HasPrefix(hash, "$argon2id$") {
		return newArgon2Hasher()
	}
	return bcryptHasher{cost: s.BcryptCost}
}
