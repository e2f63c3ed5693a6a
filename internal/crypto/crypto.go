// Package crypto implements the AEAD primitives and KDFs of spec.md
// §4.2: AES-256-GCM encrypt/decrypt, SHA-256 hashing, and the two
// PBKDF2-HMAC-SHA256 derivations (master/password path at 100_000
// iterations, fragment path at 10_000).
//
// The IV is carried as a 16-byte field for manifest compatibility with
// legacy clients that allocated 16 bytes for a GCM nonce (spec.md §9):
// only the first 12 bytes are ever used as the actual nonce.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/mmyneni/mystvault/internal/mysterrors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize        = 32
	IVFieldSize    = 16 // persisted/serialized width
	NonceSize      = 12 // actual GCM nonce width
	TagSize        = 16
	MasterSaltSize = 32
	FragmentSalt   = 16

	MasterIterations   = 100_000
	FragmentIterations = 10_000
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return b, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DeriveMasterKey derives the master key from a password using
// PBKDF2-HMAC-SHA256 at MasterIterations.
func DeriveMasterKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, MasterIterations, KeySize, sha256.New)
}

// DeriveFragmentKey derives the effective per-fragment AEAD key from a
// random raw key using PBKDF2-HMAC-SHA256 at FragmentIterations.
func DeriveFragmentKey(rawKey, salt []byte) []byte {
	return pbkdf2.Key(rawKey, salt, FragmentIterations, KeySize, sha256.New)
}

func gcm(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new GCM: %w", err)
	}
	return aead, nil
}

// Encrypt runs AES-256-GCM over plaintext with a fresh random 12-byte
// nonce (padded to IVFieldSize for manifest storage), returning the
// ciphertext body and detached tag separately, plus the padded IV
// field. It cannot fail on valid key material.
func Encrypt(key, plaintext []byte) (ciphertext, ivField, tag []byte, err error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-TagSize]
	t := sealed[len(sealed)-TagSize:]
	iv := make([]byte, IVFieldSize)
	copy(iv, nonce)
	return ct, iv, t, nil
}

// Decrypt reverses Encrypt. ivField may be 12 or 16 bytes long; only
// the first NonceSize bytes are used as the nonce. On any tag mismatch
// it returns mysterrors.AuthenticationFailed and never returns partial
// plaintext.
func Decrypt(key, ciphertext, ivField, tag []byte, stage string) ([]byte, error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, err
	}
	if len(ivField) < NonceSize {
		return nil, &mysterrors.AuthenticationFailed{Stage: stage}
	}
	nonce := ivField[:NonceSize]
	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &mysterrors.AuthenticationFailed{Stage: stage}
	}
	return plaintext, nil
}
