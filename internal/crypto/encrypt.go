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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"math"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pemTypeEncrypted = "JACS ENCRYPTED PRIVATE KEY"
	iterationsHeader = "Iterations"

	kdfIterations = 100_000
	kdfKeySize    = 32
	saltSize      = 16
	nonceSize     = 12

	minPasswordLength  = 12
	minPasswordEntropy = 40.0
)

// EncryptPrivateKey seals a PEM-encoded private key for storage at rest.
// A key is derived from the password with PBKDF2-HMAC-SHA256 and the PEM is
// sealed with AES-256-GCM. The output is a PEM envelope whose payload is
// salt || nonce || ciphertext || tag, with the KDF iteration count recorded
// as a block header. Weak passwords are rejected before any key derivation.
func EncryptPrivateKey(privatePEM []byte, password string) ([]byte, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, newError(KindBadKey, "failed to generate salt: %v", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, newError(KindBadKey, "failed to generate nonce: %v", err)
	}

	key := pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeySize, sha256.New)
	defer Zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, privatePEM, nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return pem.EncodeToMemory(&pem.Block{
		Type:    pemTypeEncrypted,
		Headers: map[string]string{iterationsHeader: strconv.Itoa(kdfIterations)},
		Bytes:   payload,
	}), nil
}

// DecryptPrivateKey opens a private key sealed by EncryptPrivateKey.
// A wrong password and corrupt ciphertext are indistinguishable: both
// surface as DecryptFailed.
func DecryptPrivateKey(ciphertext []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(ciphertext)
	if block == nil || block.Type != pemTypeEncrypted {
		return nil, newError(KindDecryptFailed, "not a %s envelope", pemTypeEncrypted)
	}

	iterations := kdfIterations
	if raw, ok := block.Headers[iterationsHeader]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, newError(KindDecryptFailed, "invalid %s header %q", iterationsHeader, raw)
		}

		iterations = n
	}

	if len(block.Bytes) < saltSize+nonceSize {
		return nil, newError(KindDecryptFailed, "ciphertext too short: %d bytes", len(block.Bytes))
	}

	salt := block.Bytes[:saltSize]
	nonce := block.Bytes[saltSize : saltSize+nonceSize]
	sealed := block.Bytes[saltSize+nonceSize:]

	key := pbkdf2.Key([]byte(password), salt, iterations, kdfKeySize, sha256.New)
	defer Zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	privatePEM, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, newError(KindDecryptFailed, "decryption failed")
	}

	return privatePEM, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, newError(KindBadKey, "failed to initialize AES: %v", err)
	}

	gcm, err := cipher.NewGCM(blockCipher)
	if err != nil {
		return nil, newError(KindBadKey, "failed to initialize GCM: %v", err)
	}

	return gcm, nil
}

// checkPassword enforces the at-rest password floor: at least 12 characters
// and at least 40 bits by the Shannon estimate.
func checkPassword(password string) error {
	runes := []rune(password)
	if len(runes) < minPasswordLength {
		return newError(KindWeakPassword,
			"password has %d characters, need at least %d", len(runes), minPasswordLength)
	}

	if bits := entropyBits(runes); bits < minPasswordEntropy {
		return newError(KindWeakPassword,
			"password entropy estimate %.1f bits is below %.0f", bits, minPasswordEntropy)
	}

	return nil
}

// entropyBits estimates total password entropy as length times the Shannon
// entropy of the character distribution.
func entropyBits(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}

	freq := make(map[rune]int, len(runes))
	for _, r := range runes {
		freq[r]++
	}

	var perChar float64
	total := float64(len(runes))

	for _, count := range freq {
		p := float64(count) / total
		perChar -= p * math.Log2(p)
	}

	return perChar * total
}
