package crypto

import "errors"

// ErrInvalidSignature is returned when a signature fails verification against
// a public key and digest.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// PrivateKey is the common interface satisfied by all private key types
// supported by this package. Secret key material is held in memory in
// concrete form; there is no PKCS11/HSM indirection.
type PrivateKey interface {
	Equal(other PrivateKey) bool
	PublicKey() (PublicKey, error)
	HashAndSign(content []byte) ([]byte, error)
}

// PrivateKeyExportable is implemented by private keys which can serialize
// their secret material to raw bytes or multibase string encoding. Not every
// PrivateKey implementation is required to support export (eg, an HSM-backed
// key would not), though in practice all concrete types in this package do.
type PrivateKeyExportable interface {
	PrivateKey
	Bytes() []byte
	Multibase() string
}

// PublicKey is the common interface satisfied by all public key types
// supported by this package.
type PublicKey interface {
	Equal(other PublicKey) bool
	Bytes() []byte
	UncompressedBytes() []byte
	Multibase() string
	DIDKey() string
	HashAndVerify(content, sig []byte) error
	HashAndVerifyLenient(content, sig []byte) error
}
