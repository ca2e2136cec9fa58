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
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// ErrNonCanonicalizable is returned when a value has no canonical JSON form,
// for example when it contains a NaN or infinite number.
var ErrNonCanonicalizable = errors.New("value is not canonicalizable")

// Canonicalize returns the RFC 8785 (JCS) canonical byte form of a JSON value.
// Two semantically equal values produce identical bytes regardless of map key
// order. The value must be a decoded JSON value: nil, bool, float64, string,
// []any or map[string]any (struct values that marshal to JSON also work).
func Canonicalize(value any) ([]byte, error) {
	if err := checkValue(value); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonicalizable, err)
	}

	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonicalizable, err)
	}

	return canonical, nil
}

// Hash returns the SHA-256 digest of the canonical form of a JSON value.
func Hash(value any) ([32]byte, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(canonical), nil
}

// HashHex returns the hex-encoded SHA-256 digest of the canonical form of a JSON value.
func HashHex(value any) (string, error) {
	digest, err := Hash(value)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(digest[:]), nil
}

// HashFields projects a JSON object onto the given top-level keys and returns
// the SHA-256 digest of the projection's canonical form. The projection keeps
// sub-object structure intact; selection happens by top-level key only.
// Keys absent from the object are skipped, not treated as null.
func HashFields(value map[string]any, fields []string) ([32]byte, error) {
	projected := make(map[string]any, len(fields))

	for _, field := range fields {
		if v, ok := value[field]; ok {
			projected[field] = v
		}
	}

	return Hash(projected)
}

// checkValue walks a decoded JSON value and rejects numbers without a JSON
// representation before they reach the canonicalizer.
func checkValue(value any) error {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: number %v has no JSON representation", ErrNonCanonicalizable, v)
		}

	case float32:
		return checkValue(float64(v))

	case []any:
		for _, item := range v {
			if err := checkValue(item); err != nil {
				return err
			}
		}

	case map[string]any:
		for _, item := range v {
			if err := checkValue(item); err != nil {
				return err
			}
		}
	}

	return nil
}
