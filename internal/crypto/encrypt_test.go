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
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "correct horse battery staple!1"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	_, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	ciphertext, err := EncryptPrivateKey(privatePEM, strongPassword)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), string(privatePEM))

	plaintext, err := DecryptPrivateKey(ciphertext, strongPassword)
	require.NoError(t, err)
	assert.Equal(t, privatePEM, plaintext)
}

func TestEncryptEnvelope(t *testing.T) {
	_, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	ciphertext, err := EncryptPrivateKey(privatePEM, strongPassword)
	require.NoError(t, err)

	block, _ := pem.Decode(ciphertext)
	require.NotNil(t, block)
	assert.Equal(t, "JACS ENCRYPTED PRIVATE KEY", block.Type)
	assert.Equal(t, "100000", block.Headers["Iterations"])

	// salt(16) + nonce(12) + at least one block of ciphertext and the GCM tag
	assert.Greater(t, len(block.Bytes), 16+12+16)
}

func TestDecryptWrongPassword(t *testing.T) {
	_, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	ciphertext, err := EncryptPrivateKey(privatePEM, strongPassword)
	require.NoError(t, err)

	_, err = DecryptPrivateKey(ciphertext, "wrong")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDecryptFailed))
}

func TestDecryptGarbage(t *testing.T) {
	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "not pem", ciphertext: []byte("junk")},
		{
			name: "wrong block type",
			ciphertext: pem.EncodeToMemory(&pem.Block{
				Type:  "PRIVATE KEY",
				Bytes: []byte("junk"),
			}),
		},
		{
			name: "payload too short",
			ciphertext: pem.EncodeToMemory(&pem.Block{
				Type:  "JACS ENCRYPTED PRIVATE KEY",
				Bytes: []byte("short"),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptPrivateKey(tt.ciphertext, strongPassword)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindDecryptFailed))
		})
	}
}

func TestWeakPasswordRejected(t *testing.T) {
	_, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
	}{
		{name: "too short", password: "short"},
		{name: "eleven chars", password: "elevenchars"},
		{name: "long but single char", password: "aaaaaaaaaaaaaaaaaaaaaaaa"},
		{name: "long but two chars", password: "ababababababababab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncryptPrivateKey(privatePEM, tt.password)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindWeakPassword))
		})
	}
}

func TestEntropyBits(t *testing.T) {
	assert.Zero(t, entropyBits(nil))
	assert.Zero(t, entropyBits([]rune("aaaa")), "single symbol has zero entropy")
	assert.Greater(t, entropyBits([]rune(strongPassword)), 40.0)
}
