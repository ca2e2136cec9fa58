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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    Algorithm
		wantErr bool
	}{
		{name: "rsa-pss", tag: "RSA-PSS", want: AlgRSAPSS},
		{name: "ed25519", tag: "ring-Ed25519", want: AlgEd25519},
		{name: "dilithium", tag: "pq-dilithium", want: AlgDilithium},
		{name: "dilithium alias", tag: "pq2025", want: AlgDilithium},
		{name: "unknown tag fails closed", tag: "pq-frodo", wantErr: true},
		{name: "empty tag", tag: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.tag)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindUnsupportedAlgorithm))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	message := []byte("the canonical digest of a document")

	for _, alg := range []Algorithm{AlgRSAPSS, AlgEd25519, AlgDilithium} {
		t.Run(string(alg), func(t *testing.T) {
			publicPEM, privatePEM, err := GenerateKeypair(alg)
			require.NoError(t, err, "failed to generate keypair")

			assert.Contains(t, string(publicPEM), "-----BEGIN")
			assert.Contains(t, string(privatePEM), "-----BEGIN")

			sig, err := Sign(alg, privatePEM, message)
			require.NoError(t, err, "failed to sign")
			require.NotEmpty(t, sig)

			ok, err := Verify(alg, publicPEM, message, sig)
			require.NoError(t, err)
			assert.True(t, ok, "signature must verify")

			tampered := append([]byte(nil), message...)
			tampered[0] ^= 0xff

			ok, err = Verify(alg, publicPEM, tampered, sig)
			require.NoError(t, err)
			assert.False(t, ok, "tampered message must not verify")
		})
	}
}

func TestVerifyWrongKey(t *testing.T) {
	message := []byte("payload")

	_, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	otherPublic, _, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	sig, err := Sign(AlgEd25519, privatePEM, message)
	require.NoError(t, err)

	ok, err := Verify(AlgEd25519, otherPublic, message, sig)
	require.NoError(t, err)
	assert.False(t, ok, "signature must not verify with another key")
}

func TestSignUnsupportedAlgorithm(t *testing.T) {
	_, err := Sign("pq-frodo", []byte("key"), []byte("msg"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnsupportedAlgorithm))

	_, _, err = GenerateKeypair("pq-frodo")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnsupportedAlgorithm))

	_, err = Verify("pq-frodo", []byte("key"), []byte("msg"), []byte("sig"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnsupportedAlgorithm))
}

func TestSignBadKey(t *testing.T) {
	_, err := Sign(AlgEd25519, []byte("not a pem"), []byte("msg"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadKey))

	publicPEM, _, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	// a public key is not accepted as a private key
	_, err = Sign(AlgEd25519, publicPEM, []byte("msg"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadKey))
}

func TestCrossAlgorithmKeyRejected(t *testing.T) {
	publicPEM, privatePEM, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	// an Ed25519 key cannot drive RSA-PSS
	_, err = Sign(AlgRSAPSS, privatePEM, []byte("msg"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadKey))

	_, err = Verify(AlgRSAPSS, publicPEM, []byte("msg"), []byte("sig"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadKey))
}

func TestHashPublicKey(t *testing.T) {
	publicPEM, _, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)

	first := HashPublicKey(publicPEM)
	second := HashPublicKey(publicPEM)

	assert.Len(t, first, 64)
	assert.Equal(t, first, second, "hash must be deterministic")

	otherPEM, _, err := GenerateKeypair(AlgEd25519)
	require.NoError(t, err)
	assert.NotEqual(t, first, HashPublicKey(otherPEM))
}

func TestZero(t *testing.T) {
	secret := []byte{1, 2, 3, 4}
	Zero(secret)
	assert.Equal(t, []byte{0, 0, 0, 0}, secret)
}
