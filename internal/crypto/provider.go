/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package crypto

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

const rsaKeyBits = 4096

const (
	pemTypePrivate      = "PRIVATE KEY"
	pemTypePublic       = "PUBLIC KEY"
	pemTypeMLDSAPrivate = "ML-DSA-87 PRIVATE KEY"
	pemTypeMLDSAPublic  = "ML-DSA-87 PUBLIC KEY"
)

// GenerateKeypair creates a fresh keypair for the given algorithm and returns
// both halves as PEM. RSA and Ed25519 keys use PKCS8/PKIX encodings; ML-DSA-87
// keys use their binary form in a dedicated PEM block.
func GenerateKeypair(alg Algorithm) (publicPEM, privatePEM []byte, err error) {
	switch alg {
	case AlgRSAPSS:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, nil, newError(KindBadKey, "failed to generate RSA key: %v", err)
		}

		return encodeKeypair(key.Public(), key)

	case AlgEd25519:
		pub, prv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, newError(KindBadKey, "failed to generate Ed25519 key: %v", err)
		}

		return encodeKeypair(pub, prv)

	case AlgDilithium, AlgDilithiumAlias:
		pub, prv, err := mldsa87.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, newError(KindBadKey, "failed to generate ML-DSA-87 key: %v", err)
		}

		pubRaw, err := pub.MarshalBinary()
		if err != nil {
			return nil, nil, newError(KindBadKey, "failed to encode ML-DSA-87 public key: %v", err)
		}

		prvRaw, err := prv.MarshalBinary()
		if err != nil {
			return nil, nil, newError(KindBadKey, "failed to encode ML-DSA-87 private key: %v", err)
		}

		publicPEM = pem.EncodeToMemory(&pem.Block{Type: pemTypeMLDSAPublic, Bytes: pubRaw})
		privatePEM = pem.EncodeToMemory(&pem.Block{Type: pemTypeMLDSAPrivate, Bytes: prvRaw})

		return publicPEM, privatePEM, nil

	default:
		return nil, nil, newError(KindUnsupportedAlgorithm, "unknown signing algorithm %q", alg)
	}
}

// Sign produces raw signature bytes over message using the PEM-encoded private key.
// For RSA-PSS the message is hashed with SHA-256 before signing; Ed25519 and
// ML-DSA-87 sign the message bytes directly.
func Sign(alg Algorithm, privatePEM, message []byte) ([]byte, error) {
	switch alg {
	case AlgRSAPSS:
		key, err := parseRSAPrivateKey(privatePEM)
		if err != nil {
			return nil, err
		}

		digest := sha256.Sum256(message)

		sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], nil)
		if err != nil {
			return nil, newError(KindBadKey, "RSA-PSS signing failed: %v", err)
		}

		return sig, nil

	case AlgEd25519:
		key, err := parseEd25519PrivateKey(privatePEM)
		if err != nil {
			return nil, err
		}

		return ed25519.Sign(key, message), nil

	case AlgDilithium, AlgDilithiumAlias:
		key, err := parseMLDSAPrivateKey(privatePEM)
		if err != nil {
			return nil, err
		}

		sig, err := key.Sign(rand.Reader, message, crypto.Hash(0))
		if err != nil {
			return nil, newError(KindBadKey, "ML-DSA-87 signing failed: %v", err)
		}

		return sig, nil

	default:
		return nil, newError(KindUnsupportedAlgorithm, "unknown signing algorithm %q", alg)
	}
}

// Verify checks raw signature bytes over message against the PEM-encoded public key.
// A false result means the signature does not match; an error means the check
// could not be performed at all (bad key, unknown algorithm).
func Verify(alg Algorithm, publicPEM, message, signature []byte) (bool, error) {
	switch alg {
	case AlgRSAPSS:
		key, err := parseRSAPublicKey(publicPEM)
		if err != nil {
			return false, err
		}

		digest := sha256.Sum256(message)

		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil); err != nil {
			return false, nil
		}

		return true, nil

	case AlgEd25519:
		key, err := parseEd25519PublicKey(publicPEM)
		if err != nil {
			return false, err
		}

		return ed25519.Verify(key, message, signature), nil

	case AlgDilithium, AlgDilithiumAlias:
		key, err := parseMLDSAPublicKey(publicPEM)
		if err != nil {
			return false, err
		}

		return mldsa87.Verify(key, message, nil, signature), nil

	default:
		return false, newError(KindUnsupportedAlgorithm, "unknown signing algorithm %q", alg)
	}
}

// HashPublicKey returns the hex-encoded SHA-256 digest of the PEM bytes of a
// public key. Signature records carry this value to bind a signature to the
// exact key that must verify it.
func HashPublicKey(publicPEM []byte) string {
	digest := sha256.Sum256(publicPEM)
	return hex.EncodeToString(digest[:])
}

// encodeKeypair wraps stdlib keys in PKIX/PKCS8 PEM blocks.
func encodeKeypair(pub any, prv any) ([]byte, []byte, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, newError(KindBadKey, "failed to encode public key: %v", err)
	}

	prvDER, err := x509.MarshalPKCS8PrivateKey(prv)
	if err != nil {
		return nil, nil, newError(KindBadKey, "failed to encode private key: %v", err)
	}

	publicPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: pubDER})
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: prvDER})

	return publicPEM, privatePEM, nil
}

// decodeBlock extracts a single PEM block of the expected type.
func decodeBlock(pemBytes []byte, wantType string) (*pem.Block, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, newError(KindBadKey, "failed to decode PEM block")
	}

	if block.Type != wantType {
		return nil, newError(KindBadKey, "unexpected PEM block type %q, want %q", block.Type, wantType)
	}

	return block, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, err := decodeBlock(pemBytes, pemTypePrivate)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, newError(KindBadKey, "failed to parse private key: %v", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, newError(KindBadKey, "private key is %T, not *rsa.PrivateKey", key)
	}

	return rsaKey, nil
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, err := decodeBlock(pemBytes, pemTypePublic)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, newError(KindBadKey, "failed to parse public key: %v", err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, newError(KindBadKey, "public key is %T, not *rsa.PublicKey", key)
	}

	return rsaKey, nil
}

func parseEd25519PrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, err := decodeBlock(pemBytes, pemTypePrivate)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, newError(KindBadKey, "failed to parse private key: %v", err)
	}

	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, newError(KindBadKey, "private key is %T, not ed25519.PrivateKey", key)
	}

	return edKey, nil
}

func parseEd25519PublicKey(pemBytes []byte) (ed25519.PublicKey, error) {
	block, err := decodeBlock(pemBytes, pemTypePublic)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, newError(KindBadKey, "failed to parse public key: %v", err)
	}

	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, newError(KindBadKey, "public key is %T, not ed25519.PublicKey", key)
	}

	return edKey, nil
}

func parseMLDSAPrivateKey(pemBytes []byte) (*mldsa87.PrivateKey, error) {
	block, err := decodeBlock(pemBytes, pemTypeMLDSAPrivate)
	if err != nil {
		return nil, err
	}

	key := new(mldsa87.PrivateKey)
	if err := key.UnmarshalBinary(block.Bytes); err != nil {
		return nil, newError(KindBadKey, "failed to parse ML-DSA-87 private key: %v", err)
	}

	return key, nil
}

func parseMLDSAPublicKey(pemBytes []byte) (*mldsa87.PublicKey, error) {
	block, err := decodeBlock(pemBytes, pemTypeMLDSAPublic)
	if err != nil {
		return nil, err
	}

	key := new(mldsa87.PublicKey)
	if err := key.UnmarshalBinary(block.Bytes); err != nil {
		return nil, newError(KindBadKey, "failed to parse ML-DSA-87 public key: %v", err)
	}

	return key, nil
}
