// Package vault seals and unseals secrets at rest (broker API secrets and
// access tokens) and derives one-way user password verifiers. Nothing outside this package
// ever holds a raw AES key; callers hold a *Vault derived once from the
// operator-supplied master passphrase at startup.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"hedgexd/internal/errs"
)

const (
	keySize   = 32 // AES-256
	saltSize  = 16
	nonceSize = 12

	// versionPrefix tags sealed values so the KDF/cipher can evolve without
	// breaking existing ciphertext.
	versionPrefix = "HXV1:"

	argonTimeDefault    = 3
	argonMemoryDefault  = 64 * 1024 // KiB
	argonThreads        = 2
	argonKeyLen         = keySize
	passwordHashThreads = 1
	passwordHashTime    = 2
	passwordHashMemory  = 19 * 1024
)

// Vault seals/unseals secrets under a key derived from the master
// passphrase via argon2id. The salt is fixed per installation (stored
// alongside the database) so the same passphrase always derives the same
// key.
type Vault struct {
	key [keySize]byte
}

// New derives the vault key from passphrase and salt using argon2id.
// salt should be a fixed, randomly generated value persisted once at
// install time (e.g. in the store's kv_meta table).
func New(passphrase string, salt []byte) *Vault {
	key := argon2.IDKey([]byte(passphrase), salt, argonTimeDefault, argonMemoryDefault, argonThreads, argonKeyLen)
	v := &Vault{}
	copy(v.key[:], key)
	return v
}

// NewSalt returns a fresh random installation salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(saltSize)
}

// Seal encrypts plaintext with AES-256-GCM, binding label as additional
// authenticated data so a ciphertext sealed for one purpose (e.g.
// "api_secret") cannot be swapped in for another (e.g. "access_token")
// without detection.
func (v *Vault) Seal(label, plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create gcm", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Wrap(errs.Crypto, "generate nonce", err)
	}

	aad := []byte(label)
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), aad)
	return versionPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unseal reverses Seal. label must match the value used to seal, or
// decryption fails (the AAD mismatches).
func (v *Vault) Unseal(label, sealed string) (string, error) {
	if !strings.HasPrefix(sealed, versionPrefix) {
		return "", errs.New(errs.Crypto, "unrecognized ciphertext version")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, versionPrefix))
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "base64 decode", err)
	}
	if len(data) < nonceSize {
		return "", errs.New(errs.Crypto, "ciphertext too short")
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create gcm", err)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	aad := []byte(label)
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "decryption failed", err)
	}
	return string(plaintext), nil
}

// HashPassword derives a memory-hard verifier for storage: "salt$hash",
// both base64-encoded. Independent of the vault key — password verifiers
// are one-way and never need to be unsealed.
func HashPassword(password string) (string, error) {
	salt, err := RandomBytes(saltSize)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "generate salt", err)
	}
	hash := argon2.IDKey([]byte(password), salt, passwordHashTime, passwordHashMemory, passwordHashThreads, 32)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyPassword checks password against a verifier produced by
// HashPassword, in constant time.
func VerifyPassword(verifier, password string) (bool, error) {
	parts := strings.SplitN(verifier, "$", 2)
	if len(parts) != 2 {
		return false, errs.New(errs.Crypto, "malformed password verifier")
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, errs.Wrap(errs.Crypto, "decode salt", err)
	}
	want, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, errs.Wrap(errs.Crypto, "decode hash", err)
	}
	got := argon2.IDKey([]byte(password), salt, passwordHashTime, passwordHashMemory, passwordHashThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NewToken returns an opaque, URL-safe random session token with at least
// 128 bits of entropy.
func NewToken() (string, error) {
	b, err := RandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// Checksum returns the base64-encoded SHA-256 digest of data, used to seal
// backup artifacts against tampering. The broker login handshake uses its
// own HMAC-SHA-256 checksum (internal/broker), not this function.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
