package dpop

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ProofClaims is the payload of a DPoP proof JWT.
type ProofClaims struct {
	JTI   string `json:"jti"`
	HTM   string `json:"htm"`
	HTU   string `json:"htu"`
	IAT   int64  `json:"iat"`
	Nonce string `json:"nonce,omitempty"`
	Ath   string `json:"ath,omitempty"`
	jwt.RegisteredClaims
}

// GenerateProof builds a compact DPoP proof JWS for an HTTP method and URL,
// optionally binding it to an access token (via the "ath" claim) and a
// server-issued nonce. htu is normalized by stripping the default port and
// any fragment; query and path are preserved verbatim.
func GenerateProof(kp *KeyPair, method, rawURL string, nonce string, accessToken string, includeAth bool) (string, error) {
	htu, err := normalizeURL(rawURL)
	if err != nil {
		return "", wrapErr("proof_url", err)
	}

	jwk, err := kp.PublicJWK()
	if err != nil {
		return "", wrapErr("proof_jwk", err)
	}

	claims := ProofClaims{
		JTI: uuid.NewString(),
		HTM: strings.ToUpper(method),
		HTU: htu,
		IAT: time.Now().Unix(),
	}
	if nonce != "" {
		claims.Nonce = nonce
	}
	if includeAth && accessToken != "" {
		sum := sha256.Sum256([]byte(accessToken))
		claims.Ath = base64.RawURLEncoding.EncodeToString(sum[:])
	}

	token := jwt.NewWithClaims(SigningMethod(), mapClaims(claims))
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = jwk

	signed, err := token.SignedString(kp.Private)
	if err != nil {
		return "", wrapErr("proof_sign", err)
	}
	return signed, nil
}

// mapClaims flattens ProofClaims into jwt.MapClaims so the "nonce"/"ath"
// optional fields are omitted from the payload entirely when empty, rather
// than serialized as empty strings.
func mapClaims(c ProofClaims) jwt.MapClaims {
	m := jwt.MapClaims{
		"jti": c.JTI,
		"htm": c.HTM,
		"htu": c.HTU,
		"iat": c.IAT,
	}
	if c.Nonce != "" {
		m["nonce"] = c.Nonce
	}
	if c.Ath != "" {
		m["ath"] = c.Ath
	}
	return m
}

func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	u.Fragment = ""
	if (u.Scheme == "https" && u.Port() == "443") || (u.Scheme == "http" && u.Port() == "80") {
		u.Host = u.Hostname()
	}
	return u.String(), nil
}
