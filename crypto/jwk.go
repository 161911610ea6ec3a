package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// JWK is a JSON Web Key representation, restricted to the EC/P-256 keys this
// package accepts as DPoP and client-assertion signing keys.
//
// Expected to be marshalled/unmarshalled as JSON.
type JWK struct {
	KeyType string  `json:"kty"`
	Curve   string  `json:"crv"`
	X       string  `json:"x"` // base64url, no padding
	Y       string  `json:"y"` // base64url, no padding
	Use     string  `json:"use,omitempty"`
	KeyID   *string `json:"kid,omitempty"`
}

// ParsePublicJWKBytes loads a PublicKey from JWK JSON bytes.
func ParsePublicJWKBytes(jwkBytes []byte) (PublicKey, error) {
	var jwk JWK
	if err := json.Unmarshal(jwkBytes, &jwk); err != nil {
		return nil, fmt.Errorf("parsing JWK JSON: %w", err)
	}
	return ParsePublicJWK(jwk)
}

// ParsePublicJWK loads a PublicKey from a JWK struct. Only the "EC" /
// "P-256" key type used by atproto OAuth is accepted.
func ParsePublicJWK(jwk JWK) (PublicKey, error) {
	if jwk.KeyType != "EC" {
		return nil, fmt.Errorf("unsupported JWK key type: %s", jwk.KeyType)
	}
	if jwk.Curve != "P-256" {
		return nil, fmt.Errorf("unsupported JWK curve: %s", jwk.Curve)
	}

	xbuf, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK base64 encoding: %w", err)
	}
	ybuf, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK base64 encoding: %w", err)
	}

	curve := elliptic.P256()
	var x, y big.Int
	x.SetBytes(xbuf)
	y.SetBytes(ybuf)

	if !curve.Params().IsOnCurve(&x, &y) {
		return nil, fmt.Errorf("invalid P-256 public key (not on curve)")
	}
	pubECDSA := &ecdsa.PublicKey{Curve: curve, X: &x, Y: &y}
	pub := PublicKeyP256{pubP256: *pubECDSA}
	if err := pub.checkCurve(); err != nil {
		return nil, err
	}
	return &pub, nil
}

// JWK exports the public key in JWK form, as embedded in DPoP proof headers
// and client assertion JWTs.
func (k *PublicKeyP256) JWK() (*JWK, error) {
	jwk := JWK{
		KeyType: "EC",
		Curve:   "P-256",
		X:       base64.RawURLEncoding.EncodeToString(k.pubP256.X.Bytes()),
		Y:       base64.RawURLEncoding.EncodeToString(k.pubP256.Y.Bytes()),
	}
	return &jwk, nil
}
