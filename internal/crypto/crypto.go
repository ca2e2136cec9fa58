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
	"fmt"
)

// Algorithm identifies a supported signing algorithm.
// The tag set is open-ended: unknown tags fail closed at dispatch time.
type Algorithm string

const (
	// AlgRSAPSS is 4096-bit RSA with PSS padding over SHA-256.
	AlgRSAPSS Algorithm = "RSA-PSS"
	// AlgEd25519 is Ed25519 over the raw message bytes.
	AlgEd25519 Algorithm = "ring-Ed25519"
	// AlgDilithium is ML-DSA-87 (post-quantum).
	AlgDilithium Algorithm = "pq-dilithium"
	// AlgDilithiumAlias is the alternate tag accepted for ML-DSA-87.
	AlgDilithiumAlias Algorithm = "pq2025"
)

// ErrorKind classifies cryptographic failures.
type ErrorKind string

const (
	// KindUnsupportedAlgorithm indicates an unknown or unavailable algorithm tag.
	KindUnsupportedAlgorithm ErrorKind = "UnsupportedAlgorithm"
	// KindBadKey indicates key material that cannot be parsed or does not match the algorithm.
	KindBadKey ErrorKind = "BadKey"
	// KindBadSignature indicates signature bytes that cannot be processed.
	KindBadSignature ErrorKind = "BadSignature"
	// KindDecryptFailed indicates at-rest decryption failure (wrong password or corrupt data).
	KindDecryptFailed ErrorKind = "DecryptFailed"
	// KindWeakPassword indicates a password below the entropy or length floor.
	KindWeakPassword ErrorKind = "WeakPassword"
)

// Error is a classified cryptographic error.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds a classified error with a formatted cause.
func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is a crypto Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	for ; err != nil; err = unwrap(err) {
		if e, ok := err.(*Error); ok {
			ce = e
			break
		}
	}

	return ce != nil && ce.Kind == kind
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}

	return u.Unwrap()
}

// ParseAlgorithm validates an algorithm tag and normalizes aliases.
// Unknown tags are rejected so that verification can never silently pass.
func ParseAlgorithm(tag string) (Algorithm, error) {
	switch Algorithm(tag) {
	case AlgRSAPSS:
		return AlgRSAPSS, nil

	case AlgEd25519:
		return AlgEd25519, nil

	case AlgDilithium, AlgDilithiumAlias:
		return AlgDilithium, nil

	default:
		return "", newError(KindUnsupportedAlgorithm, "unknown signing algorithm %q", tag)
	}
}

// Zero overwrites sensitive byte material in place.
// Callers holding private keys must call this before releasing them.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
