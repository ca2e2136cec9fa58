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
package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jacs/internal/config"
	"jacs/internal/crypto"
	"jacs/internal/document"
	"jacs/internal/trust"
)

const testPassword = "correct horse battery staple!1"

// testConfig builds a config rooted in a temp directory.
// With encrypted set, the private key filename carries the .enc suffix.
func testConfig(t *testing.T, encrypted bool) config.Config {
	t.Helper()

	privateKeyFilename := "jacs.private_key.pem"
	if encrypted {
		privateKeyFilename += ".enc"
	}

	dir := t.TempDir()

	return config.Config{
		DataDirectory:      filepath.Join(dir, "data"),
		KeyDirectory:       filepath.Join(dir, "keys"),
		PrivateKeyFilename: privateKeyFilename,
		PublicKeyFilename:  "jacs.public_key.pem",
		KeyAlgorithm:       string(crypto.AlgEd25519),
	}
}

// createTestAgent creates an agent with an unencrypted key for speed.
func createTestAgent(t *testing.T, opts ...Option) (*Agent, config.Config) {
	t.Helper()

	cfg := testConfig(t, false)

	a, err := Create(cfg, "test agent", TypeAI, "", opts...)
	require.NoError(t, err, "failed to create test agent")

	return a, cfg
}

func TestCreate(t *testing.T) {
	a, cfg := createTestAgent(t)
	defer a.Dispose()

	assert.Equal(t, StateLoaded, a.State())
	assert.NotEmpty(t, a.ID())
	assert.Equal(t, "test agent", a.Name())

	for _, file := range []string{"jacs.public_key.pem", "jacs.private_key.pem", DescriptorFilename} {
		_, err := os.Stat(filepath.Join(cfg.KeyDirectory, file))
		assert.NoError(t, err, "expected %s in key directory", file)
	}

	descriptor := a.Descriptor()
	assert.Equal(t, document.TypeAgent, descriptor[document.FieldType])
	assert.Equal(t, TypeAI, descriptor["jacsAgentType"])
	assert.True(t, trust.HasCapability(descriptor, trust.CapabilityProvenance))

	result := a.VerifySelf()
	assert.True(t, result.Valid, "fresh agent must self-verify: %v", result.Errors)
	assert.Equal(t, a.ID(), result.SignerID)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		agentType string
		password  string
		encrypted bool
	}{
		{name: "unknown agent type", agentType: "robot", encrypted: false},
		{name: "enc filename without password", agentType: TypeAI, encrypted: true},
		{name: "password without enc filename", agentType: TypeAI, password: testPassword, encrypted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.encrypted)

			_, err := Create(cfg, "x", tt.agentType, tt.password)
			require.Error(t, err)
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.PrivateKeyPassword = testPassword

	created, err := Create(cfg, "persistent agent", TypeHuman, testPassword)
	require.NoError(t, err)
	created.Dispose()

	loaded, err := Load(cfg)
	require.NoError(t, err)
	defer loaded.Dispose()

	assert.Equal(t, created.ID(), loaded.ID())
	assert.Equal(t, "persistent agent", loaded.Name())
	assert.Equal(t, crypto.AlgEd25519, loaded.Algorithm())

	result := loaded.VerifySelf()
	assert.True(t, result.Valid)
}

func TestLoadWrongPassword(t *testing.T) {
	cfg := testConfig(t, true)

	created, err := Create(cfg, "x", TypeAI, testPassword)
	require.NoError(t, err)
	created.Dispose()

	cfg.PrivateKeyPassword = "not the password"

	_, err = Load(cfg)
	require.Error(t, err)
	assert.True(t, crypto.IsKind(err, crypto.KindDecryptFailed))
}

func TestLoadMissingPassword(t *testing.T) {
	cfg := testConfig(t, true)

	created, err := Create(cfg, "x", TypeAI, testPassword)
	require.NoError(t, err)
	created.Dispose()

	_, err = Load(cfg)
	require.Error(t, err)

	var identityErr *IdentityError
	assert.ErrorAs(t, err, &identityErr)
}

func TestLoadTamperedDescriptor(t *testing.T) {
	cfg := testConfig(t, false)

	created, err := Create(cfg, "honest agent", TypeAI, "")
	require.NoError(t, err)
	created.Dispose()

	path := filepath.Join(cfg.KeyDirectory, DescriptorFilename)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Contains(t, string(raw), "honest agent")
	tampered := strings.Replace(string(raw), "honest agent", "evil agent", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = Load(cfg)
	require.Error(t, err)

	var identityErr *IdentityError
	assert.ErrorAs(t, err, &identityErr)
}

func TestLoadIDMismatch(t *testing.T) {
	cfg := testConfig(t, false)

	created, err := Create(cfg, "x", TypeAI, "")
	require.NoError(t, err)
	created.Dispose()

	cfg.AgentIDAndVersion = "00000000-0000-0000-0000-000000000000:1"

	_, err = Load(cfg)
	require.Error(t, err)
}

func TestSignMessageAndVerify(t *testing.T) {
	a, _ := createTestAgent(t)
	defer a.Dispose()

	signed, err := a.SignMessage(map[string]any{
		"action": "approve",
		"amount": 100.0,
	})
	require.NoError(t, err)

	assert.Equal(t, document.TypeMessage, signed[document.FieldType])
	assert.Len(t, signed[document.FieldSha256], 64)

	result := a.Verify(signed)
	assert.True(t, result.Valid, "own message must verify: %v", result.Errors)
	assert.Equal(t, a.ID(), result.SignerID)
}

func TestVerifyAcrossAgentsViaTrustStore(t *testing.T) {
	store := trust.NewStore()

	alice, _ := createTestAgent(t, WithTrustStore(store))
	defer alice.Dispose()

	bobCfg := testConfig(t, false)
	bob, err := Create(bobCfg, "bob", TypeAI, "", WithTrustStore(store))
	require.NoError(t, err)
	defer bob.Dispose()

	signed, err := bob.SignMessage(map[string]any{"from": "bob"})
	require.NoError(t, err)

	// without trust, alice cannot even resolve bob's key
	result := alice.Verify(signed)
	assert.False(t, result.Valid)
	assert.True(t, result.HasKind(document.ErrUnknownSigner))

	_, err = store.Add(bob.Descriptor(), bob.PublicKey())
	require.NoError(t, err)

	result = alice.Verify(signed)
	assert.True(t, result.Valid, "trusted signer must verify: %v", result.Errors)
}

func TestStrictPolicyExemptsOwnIdentity(t *testing.T) {
	store := trust.NewStore()

	alice, _ := createTestAgent(t,
		WithTrustStore(store),
		WithPolicy(trust.PolicyStrict),
	)
	defer alice.Dispose()

	// the loaded identity itself is exempt from the membership check
	own, err := alice.SignMessage(map[string]any{"self": true})
	require.NoError(t, err)
	assert.True(t, alice.Verify(own).Valid)
}

func TestSignFile(t *testing.T) {
	a, _ := createTestAgent(t)
	defer a.Dispose()

	path := filepath.Join(t.TempDir(), "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0644))

	tests := []struct {
		name  string
		embed bool
	}{
		{name: "referenced", embed: false},
		{name: "embedded", embed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := a.SignFile(path, tt.embed)
			require.NoError(t, err)

			assert.Equal(t, document.TypeArtifact, signed[document.FieldType])
			assert.Equal(t, path, signed["path"])
			assert.Len(t, signed["sha256"], 64)

			if tt.embed {
				assert.NotEmpty(t, signed["contents"])
			} else {
				assert.NotContains(t, signed, "contents")
			}

			assert.True(t, a.Verify(signed).Valid)
			assert.NoError(t, CheckFileDigest(signed, path))
		})
	}
}

func TestCheckFileDigestDetectsChange(t *testing.T) {
	a, _ := createTestAgent(t)
	defer a.Dispose()

	path := filepath.Join(t.TempDir(), "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	signed, err := a.SignFile(path, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("modified"), 0644))

	assert.Error(t, CheckFileDigest(signed, path))
}

func TestUpdateDescriptor(t *testing.T) {
	a, cfg := createTestAgent(t)
	defer a.Dispose()

	firstVersion := a.AgentVersion()

	require.NoError(t, a.UpdateDescriptor(map[string]any{"name": "renamed agent"}))

	assert.NotEqual(t, firstVersion, a.AgentVersion())

	descriptor := a.Descriptor()
	assert.Equal(t, "renamed agent", descriptor["name"])
	assert.Equal(t, firstVersion, descriptor[document.FieldLastVersion])
	assert.True(t, a.VerifySelf().Valid)

	// the new version is persisted and loads cleanly
	loaded, err := Load(cfg)
	require.NoError(t, err)
	defer loaded.Dispose()

	assert.Equal(t, "renamed agent", loaded.Name())
}

func TestUpdateDescriptorRejectsReservedFields(t *testing.T) {
	a, _ := createTestAgent(t)
	defer a.Dispose()

	err := a.UpdateDescriptor(map[string]any{document.FieldID: "new-id"})
	require.Error(t, err)
}

func TestDispose(t *testing.T) {
	a, _ := createTestAgent(t)

	a.Dispose()
	assert.Equal(t, StateDisposed, a.State())

	_, err := a.SignMessage(map[string]any{"late": true})
	require.Error(t, err)

	var identityErr *IdentityError
	assert.ErrorAs(t, err, &identityErr)

	// disposing twice is safe
	a.Dispose()
}

func TestNowIsMonotonic(t *testing.T) {
	a, _ := createTestAgent(t)
	defer a.Dispose()

	previous := a.Now()
	for i := 0; i < 100; i++ {
		current := a.Now()
		assert.False(t, current.Before(previous), "timestamps must not go backwards")
		previous = current
	}
}
