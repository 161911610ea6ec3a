// Package dpop implements RFC 9449 Demonstrating Proof-of-Possession:
// ES256/P-256 key management, proof JWT construction, per-server nonce
// tracking, and the client facade that ties the three together.
//
// File layout follows the dpop package found in the retrieval corpus
// (types/generator/keystore/validator/errors), adapted from that package's
// Ed25519 proofs to the ES256/P-256 keys atproto OAuth requires.
package dpop

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	occrypto "github.com/go-atproto/oauth/crypto"
)

// KeyPair is an ES256/P-256 DPoP signing key together with its derived
// JWK key ID.
type KeyPair struct {
	Private occrypto.PrivateKey
	Public  occrypto.PublicKey
	KeyID   string
}

// GenerateKeyPair creates a fresh ES256/P-256 DPoP key, deriving its kid as
// base64url(SHA-256(kty|crv|x|y))[0:8], and performs a self-test sign+verify
// before returning it.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := occrypto.GeneratePrivateKeyP256()
	if err != nil {
		return nil, fmt.Errorf("dpop: generating P-256 key: %w", err)
	}
	return newKeyPair(priv)
}

// ImportKeyPair wraps an existing P-256 private key as a DPoP KeyPair,
// re-deriving its public key and kid and running the same self-test as
// GenerateKeyPair.
func ImportKeyPair(priv *occrypto.PrivateKeyP256) (*KeyPair, error) {
	return newKeyPair(priv)
}

func newKeyPair(priv *occrypto.PrivateKeyP256) (*KeyPair, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("dpop: deriving public key: %w", err)
	}
	pubP256, ok := pub.(*occrypto.PublicKeyP256)
	if !ok {
		return nil, fmt.Errorf("dpop: unexpected public key type %T", pub)
	}
	kid, err := deriveKeyID(pubP256)
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{Private: priv, Public: pub, KeyID: kid}
	if err := kp.selfTest(); err != nil {
		return nil, fmt.Errorf("dpop: key self-test failed: %w", err)
	}
	return kp, nil
}

func deriveKeyID(pub *occrypto.PublicKeyP256) (string, error) {
	jwk, err := pub.JWK()
	if err != nil {
		return "", fmt.Errorf("dpop: exporting JWK: %w", err)
	}
	material := jwk.KeyType + "|" + jwk.Curve + "|" + jwk.X + "|" + jwk.Y
	sum := sha256.Sum256([]byte(material))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:8], nil
}

func (kp *KeyPair) selfTest() error {
	const probe = "dpop-key-self-test"
	sig, err := kp.Private.HashAndSign([]byte(probe))
	if err != nil {
		return err
	}
	return kp.Public.HashAndVerify([]byte(probe), sig)
}

// PublicJWK returns the public key as a crypto.JWK header value, with use=sig
// and the derived kid set.
func (kp *KeyPair) PublicJWK() (*occrypto.JWK, error) {
	pubP256, ok := kp.Public.(*occrypto.PublicKeyP256)
	if !ok {
		return nil, fmt.Errorf("dpop: unexpected public key type %T", kp.Public)
	}
	jwk, err := pubP256.JWK()
	if err != nil {
		return nil, err
	}
	jwk.Use = "sig"
	kid := kp.KeyID
	jwk.KeyID = &kid
	return jwk, nil
}
