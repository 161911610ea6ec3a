// Cryptographic keys and operations used by the OAuth client: ES256 / NIST
// P-256 / secp256r1 signing keys, used both for DPoP proof JWTs and private
// key JWT client assertions.
//
// "Low-S" signatures are enforced when signing and when verifying via
// [PublicKeyP256.HashAndVerify], matching the atproto cryptography
// specification. [PublicKeyP256.HashAndVerifyLenient] skips that check for
// verifying third-party JWTs (eg, authorization server tokens) that were not
// necessarily produced by this package.
//
// This package uses concrete types for private keys, meaning secret key
// material is present in process memory for the lifetime of the key.
package crypto
