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
package document

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jacs/internal/crypto"
	"jacs/internal/schema"
)

// testIdentity is an in-memory signer for engine tests.
type testIdentity struct {
	id         string
	version    string
	alg        crypto.Algorithm
	publicPEM  []byte
	privatePEM []byte
}

func newTestIdentity(t *testing.T, alg crypto.Algorithm) *testIdentity {
	t.Helper()

	publicPEM, privatePEM, err := crypto.GenerateKeypair(alg)
	require.NoError(t, err, "failed to generate test keypair")

	return &testIdentity{
		id:         uuid.NewString(),
		version:    uuid.NewString(),
		alg:        alg,
		publicPEM:  publicPEM,
		privatePEM: privatePEM,
	}
}

func (i *testIdentity) AgentID() string             { return i.id }
func (i *testIdentity) AgentVersion() string        { return i.version }
func (i *testIdentity) Algorithm() crypto.Algorithm { return i.alg }
func (i *testIdentity) PublicKeyPEM() []byte        { return i.publicPEM }
func (i *testIdentity) Now() time.Time              { return time.Now().UTC() }

func (i *testIdentity) SignDigest(d []byte) ([]byte, error) {
	return crypto.Sign(i.alg, i.privatePEM, d)
}

// testResolver resolves public keys for a set of test identities.
type testResolver map[string][]byte

func (r testResolver) ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error) {
	pem, ok := r[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent %s", agentID)
	}

	return pem, nil
}

func newTestEngine(t *testing.T, alg crypto.Algorithm) (*Engine, *testIdentity) {
	t.Helper()

	identity := newTestIdentity(t, alg)
	resolver := testResolver{identity.id: identity.publicPEM}

	return NewEngine(identity, resolver), identity
}

func TestCreateDocumentSignAndVerify(t *testing.T) {
	engine, identity := newTestEngine(t, crypto.AlgEd25519)

	signed, err := engine.CreateDocument(map[string]any{
		"action": "approve",
		"amount": 100.0,
	}, nil)
	require.NoError(t, err)

	id, _ := signed[FieldID].(string)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "jacsId must be a UUID")

	assert.Equal(t, signed[FieldVersion], signed[FieldOriginalVersion])
	assert.Len(t, signed[FieldSha256], 64)

	record, err := SignatureFrom(signed)
	require.NoError(t, err)
	assert.Equal(t, "ring-Ed25519", record.SigningAlgorithm)
	assert.Equal(t, identity.id, record.AgentID)
	assert.Contains(t, record.Fields, "action")
	assert.Contains(t, record.Fields, "amount")

	result := engine.VerifyDocument(signed, nil)
	assert.True(t, result.Valid, "fresh document must verify: %v", result.Errors)
	assert.Equal(t, identity.id, result.SignerID)
}

func TestSignVerifyAllAlgorithms(t *testing.T) {
	for _, alg := range []crypto.Algorithm{crypto.AlgRSAPSS, crypto.AlgEd25519, crypto.AlgDilithium} {
		t.Run(string(alg), func(t *testing.T) {
			engine, _ := newTestEngine(t, alg)

			signed, err := engine.CreateDocument(map[string]any{"payload": "data"}, nil)
			require.NoError(t, err)

			result := engine.VerifyDocument(signed, nil)
			assert.True(t, result.Valid, "round-trip must verify for %s: %v", alg, result.Errors)
		})
	}
}

func TestTamperDetection(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	signed, err := engine.CreateDocument(map[string]any{
		"action": "approve",
		"amount": 100.0,
	}, nil)
	require.NoError(t, err)

	tampered := Clone(signed)
	tampered["amount"] = 1000.0

	result := engine.VerifyDocument(tampered, nil)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(ErrHashMismatch), "expected HashMismatch, got %v", result.Errors)
}

func TestVerifySurvivesJSONRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	signed, err := engine.CreateDocument(map[string]any{
		"z":      "last",
		"a":      "first",
		"nested": map[string]any{"k": 1.0},
	}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(signed)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	result := engine.VerifyDocument(decoded, nil)
	assert.True(t, result.Valid, "wire round-trip must not break verification: %v", result.Errors)
}

func TestUpdateDocumentLineage(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	d0, err := engine.CreateDocument(map[string]any{"state": "draft"}, nil)
	require.NoError(t, err)

	seen := map[string]bool{d0[FieldVersion].(string): true}

	previous := d0
	for i := 0; i < 3; i++ {
		next := Clone(previous)
		next["state"] = fmt.Sprintf("revision-%d", i)

		updated, err := engine.UpdateDocument(previous, next)
		require.NoError(t, err)

		assert.Equal(t, d0[FieldID], updated[FieldID], "jacsId must be stable")
		assert.Equal(t, d0[FieldOriginalVersion], updated[FieldOriginalVersion])
		assert.Equal(t, d0[FieldOriginalDate], updated[FieldOriginalDate])
		assert.Equal(t, previous[FieldVersion], updated[FieldLastVersion])

		version := updated[FieldVersion].(string)
		assert.False(t, seen[version], "every jacsVersion must be unique")
		seen[version] = true

		result := engine.VerifyDocument(updated, nil)
		assert.True(t, result.Valid)

		previous = updated
	}
}

func TestUpdateDocumentIdentityMismatch(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	d0, err := engine.CreateDocument(map[string]any{"state": "draft"}, nil)
	require.NoError(t, err)

	next := Clone(d0)
	next[FieldID] = uuid.NewString()

	_, err = engine.UpdateDocument(d0, next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity mismatch")
}

func TestVerifyUnknownSigner(t *testing.T) {
	identity := newTestIdentity(t, crypto.AlgEd25519)
	engine := NewEngine(identity, testResolver{})

	signed, err := engine.CreateDocument(map[string]any{"payload": "data"}, nil)
	require.NoError(t, err)

	result := engine.VerifyDocument(signed, nil)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(ErrUnknownSigner))
}

func TestVerifyKeyHashMismatch(t *testing.T) {
	identity := newTestIdentity(t, crypto.AlgEd25519)
	other := newTestIdentity(t, crypto.AlgEd25519)

	// the resolver hands back a different key than the record was bound to
	engine := NewEngine(identity, testResolver{identity.id: other.publicPEM})

	signed, err := engine.CreateDocument(map[string]any{"payload": "data"}, nil)
	require.NoError(t, err)

	result := engine.VerifyDocument(signed, nil)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(ErrKeyHashMismatch))
}

func TestVerifyUnknownAlgorithmFailsClosed(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	signed, err := engine.CreateDocument(map[string]any{"payload": "data"}, nil)
	require.NoError(t, err)

	record := signed[FieldSignature].(map[string]any)
	record["signingAlgorithm"] = "pq-frodo"

	result := engine.VerifyDocument(signed, nil)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(ErrUnsupportedAlgorithm), "unknown tags must never pass: %v", result.Errors)
}

func TestVerifyMissingSignature(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	result := engine.VerifyDocument(map[string]any{"payload": "data"}, nil)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(ErrSignatureInvalid))
}

func TestVerifyWithSchemaValidator(t *testing.T) {
	engine, _ := newTestEngine(t, crypto.AlgEd25519)

	validator, err := schema.NewValidator(`{
		"type": "object",
		"properties": {"amount": {"type": "number"}},
		"required": ["amount"]
	}`)
	require.NoError(t, err)

	signed, err := engine.CreateDocument(map[string]any{"amount": 100.0}, validator)
	require.NoError(t, err)

	result := engine.VerifyDocument(signed, validator)
	assert.True(t, result.Valid)

	_, err = engine.CreateDocument(map[string]any{"other": "field"}, validator)
	require.Error(t, err, "schema violation must block creation")
}

func TestCoveredFields(t *testing.T) {
	doc := map[string]any{
		"b":            1,
		"a":            2,
		FieldSignature: map[string]any{},
		FieldSha256:    "abc",
	}

	assert.Equal(t, []string{FieldID}, CoveredFields(map[string]any{FieldID: "x"}))
	assert.Equal(t, []string{"a", "b"}, CoveredFields(doc))
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{
		"nested": map[string]any{"k": "v"},
		"list":   []any{1.0, 2.0},
	}

	copied := Clone(original)
	copied["nested"].(map[string]any)["k"] = "changed"
	copied["list"].([]any)[0] = 9.0

	assert.Equal(t, "v", original["nested"].(map[string]any)["k"])
	assert.Equal(t, 1.0, original["list"].([]any)[0])
}
