package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var ErrPasswordMismatch = errors.New("cryptox: password does not match")

// PasswordHasher hashes local-account passwords with Argon2id and a
// server-side pepper kept outside the database.
type PasswordHasher struct {
	pepper string
}

// NewPasswordHasher loads the pepper from file, generating and persisting a
// fresh one when the file does not exist yet.
func NewPasswordHasher(pepperFile string) (*PasswordHasher, error) {
	pepper, err := loadOrGeneratePepper(pepperFile)
	if err != nil {
		return nil, fmt.Errorf("cryptox: pepper: %w", err)
	}
	return &PasswordHasher{pepper: pepper}, nil
}

// NewPasswordHasherWithPepper is used by tests and by callers that manage the
// pepper themselves.
func NewPasswordHasherWithPepper(pepper string) *PasswordHasher {
	return &PasswordHasher{pepper: pepper}
}

// Hash returns a PHC-format Argon2id hash string including salt and parameters.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(password+h.pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify compares a plaintext password against a hash produced by Hash.
func (h *PasswordHasher) Verify(password, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return errors.New("cryptox: invalid argon2id hash format")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("cryptox: invalid argon2id parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("cryptox: invalid salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("cryptox: invalid hash: %w", err)
	}

	got := argon2.IDKey([]byte(password+h.pepper), salt, iters, mem, par, uint32(len(want))) // #nosec G115
	if subtle.ConstantTimeCompare(got, want) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

func loadOrGeneratePepper(file string) (string, error) {
	file = filepath.Clean(file)

	if b, err := os.ReadFile(file); err == nil {
		return strings.TrimSpace(string(b)), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return "", err
	}

	pepper, err := GenerateToken(keyLength)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(file, []byte(pepper), 0o600); err != nil {
		return "", err
	}
	return pepper, nil
}
