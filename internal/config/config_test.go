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
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jacs/internal/storage/types"
)

func TestNewDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "./jacs_data", cfg.DataDirectory)
	assert.Equal(t, "./jacs_keys", cfg.KeyDirectory)
	assert.Equal(t, "jacs.private_key.pem.enc", cfg.PrivateKeyFilename)
	assert.Equal(t, "jacs.public_key.pem", cfg.PublicKeyFilename)
	assert.Equal(t, "ring-Ed25519", cfg.KeyAlgorithm)
	assert.Equal(t, types.StorageFS, cfg.DefaultStorage)
	assert.False(t, cfg.UseSecurity)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", cfg.UUID.String())
}

func TestNewFromViper(t *testing.T) {
	viper.Reset()

	viper.Set("jacs_agent_key_algorithm", "pq-dilithium")
	viper.Set("jacs_data_directory", "/var/lib/jacs")
	viper.Set("jacs_default_storage", "postgres")
	viper.Set("jacs_key_directory", "/etc/jacs/keys")
	viper.Set("jacs_use_security", "true")
	viper.Set("storage.dsn", "postgres://localhost/jacs")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "pq-dilithium", cfg.KeyAlgorithm)
	assert.Equal(t, "/var/lib/jacs", cfg.DataDirectory)
	assert.Equal(t, types.StoragePostgres, cfg.DefaultStorage)
	assert.Equal(t, "/etc/jacs/keys", cfg.KeyDirectory)
	assert.True(t, cfg.UseSecurity)
	assert.Equal(t, "postgres://localhost/jacs", cfg.Storage.DSN)
}

func TestNewInstanceUUIDIsUnique(t *testing.T) {
	viper.Reset()

	first, err := New()
	require.NoError(t, err)

	second, err := New()
	require.NoError(t, err)

	assert.NotEqual(t, first.UUID, second.UUID)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown algorithm", key: "jacs_agent_key_algorithm", value: "rot13"},
		{name: "unknown storage", key: "jacs_default_storage", value: "tape"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			viper.Set(tt.key, tt.value)

			_, err := New()
			require.Error(t, err)
		})
	}
}
