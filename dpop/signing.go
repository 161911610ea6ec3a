package dpop

import (
	"crypto"
	"sync"

	occrypto "github.com/go-atproto/oauth/crypto"
	"github.com/golang-jwt/jwt/v5"
)

// signingMethodES256 implements jwt.SigningMethod against this library's
// own crypto.PrivateKeyP256/PublicKeyP256 types, the same shape as
// atproto/auth/oauth's signingMethodAtproto, restricted to the single
// ES256 algorithm this library ever uses for DPoP proofs and client
// assertions.
type signingMethodES256 struct {
	hash crypto.Hash
}

var (
	signingMethod     *signingMethodES256
	registerOnce      sync.Once
)

func registerSigningMethod() {
	registerOnce.Do(func() {
		jwt.MarshalSingleStringAsArray = false
		signingMethod = &signingMethodES256{hash: crypto.SHA256}
		jwt.RegisterSigningMethod(signingMethod.Alg(), func() jwt.SigningMethod {
			return signingMethod
		})
	})
}

// SigningMethod returns the registered ES256 jwt.SigningMethod for this
// package's key types. Calling code (in the oauth package, for client
// assertions) uses this instead of jwt.SigningMethodES256 because the
// latter only accepts *ecdsa.PrivateKey, not crypto.PrivateKeyP256.
func SigningMethod() jwt.SigningMethod {
	registerSigningMethod()
	return signingMethod
}

func (sm *signingMethodES256) Verify(signingString string, sig []byte, key interface{}) error {
	pub, ok := key.(occrypto.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !sm.hash.Available() {
		return jwt.ErrHashUnavailable
	}
	if len(sig) != 64 {
		return jwt.ErrTokenSignatureInvalid
	}
	// Use the lenient variant: tokens signed by third parties (eg, the
	// authorization server) are not required to produce low-S signatures.
	return pub.HashAndVerifyLenient([]byte(signingString), sig)
}

func (sm *signingMethodES256) Sign(signingString string, key interface{}) ([]byte, error) {
	priv, ok := key.(occrypto.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return priv.HashAndSign([]byte(signingString))
}

func (sm *signingMethodES256) Alg() string {
	return "ES256"
}
