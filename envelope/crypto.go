// Package envelope implements encryption-at-rest for sensitive session
// fields (access tokens, refresh tokens, PKCE verifiers, and EC private key
// components) before they reach the storage layer, plus the versioned JSON
// envelope format those encrypted values and their containing objects are
// serialized in.
//
// There is no direct precedent for this in the retrieval corpus's oauth
// sketch package (it holds no encryption at rest at all); the HKDF-SHA256
// per-context key derivation is grounded on golang.org/x/crypto/hkdf,
// already present in the teacher's own go.mod dependency closure though
// unused by the sketch, and the versioned/self-describing encoded-secret
// shape follows the pattern in the corpus's password-hashing code
// ($argon2id$v=...$params$salt$hash): every secret value at rest names its
// own format version and parameters rather than relying on an external
// schema.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyLen = 32 // AES-256

// DeriveKey computes the per-context encryption key: HKDF-SHA256 over
// masterKey, with salt = SHA256("atproto-salt-"+context) and
// info = "atproto-"+context, producing a 32-byte AES-256 key.
func DeriveKey(masterKey []byte, context string) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("envelope: master key is empty")
	}
	salt := sha256.Sum256([]byte("atproto-salt-" + context))
	info := []byte("atproto-" + context)
	reader := hkdf.New(sha256.New, masterKey, salt[:], info)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("envelope: deriving key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under the key derived for context, using
// AES-256-GCM with a 12-byte random nonce and the dotted field path
// (e.g. "data.access_token") as additional authenticated data.
//
// Returns the raw IV, the ciphertext without its tag, and the GCM tag
// split out for the Envelope wire format (§6): {iv, data, tag}.
func Seal(masterKey []byte, context, aad string, plaintext []byte) (iv, data, tag []byte, err error) {
	key, err := DeriveKey(masterKey, context)
	if err != nil {
		return nil, nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("envelope: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("envelope: creating GCM: %w", err)
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("envelope: generating IV: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, []byte(aad))
	tagLen := gcm.Overhead()
	data = sealed[:len(sealed)-tagLen]
	tag = sealed[len(sealed)-tagLen:]
	return iv, data, tag, nil
}

// Open decrypts a sealed value previously produced by Seal. context and
// aad must match exactly, or decryption fails.
func Open(masterKey []byte, context, aad string, iv, data, tag []byte) ([]byte, error) {
	key, err := DeriveKey(masterKey, context)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: creating GCM: %w", err)
	}
	combined := append(append([]byte{}, data...), tag...)
	plaintext, err := gcm.Open(nil, iv, combined, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("envelope: decryption failed (wrong key or tampered data): %w", err)
	}
	return plaintext, nil
}
