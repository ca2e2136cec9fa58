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
package trust

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jacs/internal/crypto"
	"jacs/internal/document"
)

// testIdentity is an in-memory signer for trust store tests.
type testIdentity struct {
	id         string
	version    string
	publicPEM  []byte
	privatePEM []byte
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()

	publicPEM, privatePEM, err := crypto.GenerateKeypair(crypto.AlgEd25519)
	require.NoError(t, err, "failed to generate test keypair")

	return &testIdentity{
		id:         uuid.NewString(),
		version:    uuid.NewString(),
		publicPEM:  publicPEM,
		privatePEM: privatePEM,
	}
}

func (i *testIdentity) AgentID() string             { return i.id }
func (i *testIdentity) AgentVersion() string        { return i.version }
func (i *testIdentity) Algorithm() crypto.Algorithm { return crypto.AlgEd25519 }
func (i *testIdentity) PublicKeyPEM() []byte        { return i.publicPEM }
func (i *testIdentity) Now() time.Time              { return time.Now().UTC() }

func (i *testIdentity) SignDigest(d []byte) ([]byte, error) {
	return crypto.Sign(crypto.AlgEd25519, i.privatePEM, d)
}

func (i *testIdentity) ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error) {
	return i.publicPEM, nil
}

// selfSignedDescriptor builds a minimal agent descriptor signed by identity.
func selfSignedDescriptor(t *testing.T, identity *testIdentity) map[string]any {
	t.Helper()

	engine := document.NewEngine(identity, identity)

	descriptor, err := engine.Sign(map[string]any{
		document.FieldID:      identity.id,
		document.FieldVersion: identity.version,
		document.FieldType:    document.TypeAgent,
		"jacsAgentType":       "ai",
		"name":                "test agent",
		"jacsServices": []any{
			map[string]any{"type": CapabilityProvenance},
		},
	})
	require.NoError(t, err)

	return descriptor
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    Policy
		wantErr bool
	}{
		{name: "empty defaults to verified", tag: "", want: PolicyVerified},
		{name: "open", tag: "open", want: PolicyOpen},
		{name: "verified", tag: "verified", want: PolicyVerified},
		{name: "strict", tag: "strict", want: PolicyStrict},
		{name: "unknown", tag: "paranoid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicy(tt.tag)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAndGet(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)
	descriptor := selfSignedDescriptor(t, identity)

	entry, err := store.Add(descriptor, identity.publicPEM)
	require.NoError(t, err)

	assert.Equal(t, identity.id, entry.AgentID)
	assert.Equal(t, "test agent", entry.Name)
	assert.Equal(t, crypto.HashPublicKey(identity.publicPEM), entry.PublicKeyHash)
	assert.False(t, entry.TrustedAt.IsZero())

	got, ok := store.Get(identity.id)
	require.True(t, ok)
	assert.Equal(t, entry.AgentID, got.AgentID)

	assert.True(t, store.Contains(identity.id))
	assert.Len(t, store.List(), 1)

	pem, err := store.ResolvePublicKey(identity.id, entry.PublicKeyHash)
	require.NoError(t, err)
	assert.Equal(t, identity.publicPEM, pem)
}

func TestAddRejectsTamperedDescriptor(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)
	descriptor := selfSignedDescriptor(t, identity)

	descriptor["name"] = "impostor"

	_, err := store.Add(descriptor, identity.publicPEM)
	require.Error(t, err)
	assert.False(t, store.Contains(identity.id), "a failed add must leave no entry")
}

func TestAddRejectsUnsignedDescriptor(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)

	_, err := store.Add(map[string]any{document.FieldID: identity.id}, identity.publicPEM)
	require.Error(t, err)
}

func TestAddRejectsWrongKey(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)
	other := newTestIdentity(t)
	descriptor := selfSignedDescriptor(t, identity)

	_, err := store.Add(descriptor, other.publicPEM)
	require.Error(t, err)
}

func TestAddRejectsIdentityMismatch(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)
	descriptor := selfSignedDescriptor(t, identity)

	descriptor[document.FieldID] = uuid.NewString()

	_, err := store.Add(descriptor, identity.publicPEM)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match signer")
}

func TestRemove(t *testing.T) {
	store := NewStore()
	identity := newTestIdentity(t)

	_, err := store.Add(selfSignedDescriptor(t, identity), identity.publicPEM)
	require.NoError(t, err)

	store.Remove(identity.id)
	assert.False(t, store.Contains(identity.id))

	// removing an absent agent is a no-op
	store.Remove(identity.id)

	_, err = store.ResolvePublicKey(identity.id, "")
	require.Error(t, err)
}

func TestHasCapability(t *testing.T) {
	tests := []struct {
		name       string
		descriptor map[string]any
		want       bool
	}{
		{
			name: "by type",
			descriptor: map[string]any{
				"jacsServices": []any{map[string]any{"type": CapabilityProvenance}},
			},
			want: true,
		},
		{
			name: "by capabilities list",
			descriptor: map[string]any{
				"jacsServices": []any{map[string]any{
					"type":         "inference",
					"capabilities": []any{"chat", CapabilityProvenance},
				}},
			},
			want: true,
		},
		{
			name:       "no services",
			descriptor: map[string]any{},
			want:       false,
		},
		{
			name: "other services only",
			descriptor: map[string]any{
				"jacsServices": []any{map[string]any{"type": "inference"}},
			},
			want: false,
		},
		{
			name: "malformed service entries",
			descriptor: map[string]any{
				"jacsServices": []any{"not a map", 42.0},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCapability(tt.descriptor, CapabilityProvenance))
		})
	}
}
