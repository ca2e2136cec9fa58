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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"jacs/internal/crypto"
	"jacs/internal/storage/types"
)

// Config represents the main application configuration structure.
// The jacs_* keys are the agent-facing options; Log, Server and Storage carry
// service settings. Environment variables of the same uppercased names
// override the config file; JACS_PRIVATE_KEY_PASSWORD is the only secret read
// from the environment. UUID is generated per application instance.
type Config struct {
	DataDirectory      string            `mapstructure:"jacs_data_directory"`
	KeyDirectory       string            `mapstructure:"jacs_key_directory"`
	PrivateKeyFilename string            `mapstructure:"jacs_agent_private_key_filename"`
	PublicKeyFilename  string            `mapstructure:"jacs_agent_public_key_filename"`
	KeyAlgorithm       string            `mapstructure:"jacs_agent_key_algorithm"`
	AgentIDAndVersion  string            `mapstructure:"jacs_agent_id_and_version"`
	PrivateKeyPassword string            `mapstructure:"jacs_private_key_password"`
	DefaultStorage     types.StorageType `mapstructure:"jacs_default_storage"`
	UseSecurity        bool              `mapstructure:"-"`

	Log     ConfigLog     `mapstructure:"log"`
	Server  ConfigServer  `mapstructure:"server"`
	Storage ConfigStorage `mapstructure:"storage"`
	UUID    uuid.UUID
}

// ConfigLog defines logging configuration for the application.
// It controls log output format, verbosity level, and pretty-printing options.
type ConfigLog struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ConfigServer defines HTTP server configuration parameters.
// It specifies the listen address, read timeout, and write timeout for the server.
type ConfigServer struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ConfigStorage defines storage backend connection parameters: DSN, bucket
// for object storage, and database pool settings.
type ConfigStorage struct {
	Bucket          string        `mapstructure:"bucket"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
}

// New loads and validates application configuration from viper.
// It unmarshals configuration from file and environment, validates the key
// algorithm and storage type against allowed values, fills defaults for the
// key and data directories and key filenames, and generates a unique UUID for
// the application instance. Returns an error if unmarshaling fails or a value
// is invalid.
func New() (Config, error) {
	config := Config{
		UUID: uuid.New(),
	}

	if err := viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// jacs_use_security may arrive as a bool or as the string "true";
	// the password and identity pin usually arrive through the environment.
	config.UseSecurity = viper.GetBool("jacs_use_security")

	if config.PrivateKeyPassword == "" {
		config.PrivateKeyPassword = viper.GetString("jacs_private_key_password")
	}

	if config.AgentIDAndVersion == "" {
		config.AgentIDAndVersion = viper.GetString("jacs_agent_id_and_version")
	}

	if config.DataDirectory == "" {
		config.DataDirectory = "./jacs_data"
	}

	if config.KeyDirectory == "" {
		config.KeyDirectory = "./jacs_keys"
	}

	if config.PrivateKeyFilename == "" {
		config.PrivateKeyFilename = "jacs.private_key.pem.enc"
	}

	if config.PublicKeyFilename == "" {
		config.PublicKeyFilename = "jacs.public_key.pem"
	}

	if config.KeyAlgorithm == "" {
		config.KeyAlgorithm = string(crypto.AlgEd25519)
	}

	if _, err := crypto.ParseAlgorithm(config.KeyAlgorithm); err != nil {
		return config, fmt.Errorf("invalid jacs_agent_key_algorithm: %w", err)
	}

	if config.DefaultStorage == "" {
		config.DefaultStorage = types.StorageFS
	}

	if !config.DefaultStorage.Valid() {
		return config, fmt.Errorf("invalid jacs_default_storage: %s", config.DefaultStorage)
	}

	slog.Debug("configuration loaded",
		"data_directory", config.DataDirectory,
		"key_directory", config.KeyDirectory,
		"algorithm", config.KeyAlgorithm,
		"storage", config.DefaultStorage,
		"use_security", config.UseSecurity,
	)

	return config, nil
}
