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
package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is returned when a requested document or version does not exist.
var ErrNotFound = errors.New("document not found")

// StoredDocument is the storage-side view of a signed document: its identity,
// version, type tag and raw pretty-printed JSON. Storage never interprets the
// payload; canonical form is recomputed on verify by the core.
type StoredDocument struct {
	ID      string `json:"jacs_id"`
	Version string `json:"jacs_version"`
	Type    string `json:"jacs_type,omitempty"`
	Raw     []byte `json:"raw"`
}

// FromDocument converts a decoded signed document to its storage form.
// The raw JSON is pretty-printed for human inspection at rest.
func FromDocument(doc map[string]any) (StoredDocument, error) {
	id, _ := doc["jacsId"].(string)
	version, _ := doc["jacsVersion"].(string)

	if id == "" || version == "" {
		return StoredDocument{}, fmt.Errorf("document is missing jacsId or jacsVersion")
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return StoredDocument{}, fmt.Errorf("failed to marshal document: %w", err)
	}

	docType, _ := doc["jacsType"].(string)

	return StoredDocument{
		ID:      id,
		Version: version,
		Type:    docType,
		Raw:     raw,
	}, nil
}

// Decode parses the stored raw JSON back into a document value.
func (d StoredDocument) Decode() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(d.Raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored document %s:%s: %w", d.ID, d.Version, err)
	}

	return doc, nil
}

// StorageType defines the type of storage backend to use.
type StorageType string

const (
	// StorageFS represents file system-based storage
	StorageFS StorageType = "fs"
	// StorageMemory represents in-memory ephemeral storage
	StorageMemory StorageType = "memory"
	// StorageRedis represents Redis-based storage
	StorageRedis StorageType = "redis"
	// StoragePostgres represents PostgreSQL database storage
	StoragePostgres StorageType = "postgres"
	// StorageS3 represents S3-compatible object storage
	StorageS3 StorageType = "s3"
)

// Valid reports whether the tag names a known backend.
func (t StorageType) Valid() bool {
	switch t {
	case StorageFS, StorageMemory, StorageRedis, StoragePostgres, StorageS3:
		return true
	default:
		return false
	}
}

// Storage is the document persistence collaborator consumed by the core.
// Backends store signed documents and agent descriptors only; private keys
// never travel through this interface.
type Storage interface {
	// Close releases storage resources and closes connections
	Close() error
	// PutDocument persists one signed document version
	PutDocument(ctx context.Context, doc StoredDocument) error
	// GetDocument retrieves a document by identity and version
	GetDocument(ctx context.Context, id, version string) (StoredDocument, error)
	// ListVersions lists all stored versions of a document identity
	ListVersions(ctx context.Context, id string) ([]string, error)
	// ProbeLiveness returns an HTTP handler for liveness probe
	ProbeLiveness() func(w http.ResponseWriter, r *http.Request)
	// ProbeReadiness returns an HTTP handler for readiness probe
	ProbeReadiness() func(w http.ResponseWriter, r *http.Request)
	// ProbeStartup returns an HTTP handler for startup probe
	ProbeStartup() func(w http.ResponseWriter, r *http.Request)
	// WithAppID sets the application ID for the storage instance
	WithAppID(string)
	// WithDSN sets the data source name (connection string) for the storage
	WithDSN(string)
	// WithDataDir sets the directory path for file-based persistence
	WithDataDir(string)
	// WithBucket sets the bucket name for object storage backends
	WithBucket(string)
	// WithConnMaxIdleTime sets the maximum amount of time a connection may be idle
	WithConnMaxIdleTime(time.Duration)
	// WithConnMaxLifetime sets the maximum amount of time a connection may be reused
	WithConnMaxLifetime(time.Duration)
	// WithMaxIdleConns sets the maximum number of connections in the idle connection pool
	WithMaxIdleConns(int)
	// WithMaxOpenConns sets the maximum number of open connections to the database
	WithMaxOpenConns(int)
}

// Option is a functional option type for configuring Storage implementations.
type Option func(Storage)

// WithAppID returns an option that sets the application ID for the storage instance.
func WithAppID(appID string) Option {
	return func(s Storage) {
		s.WithAppID(appID)
	}
}

// WithDSN returns an option that sets the data source name (connection string) for the storage.
func WithDSN(dsn string) Option {
	return func(s Storage) {
		s.WithDSN(dsn)
	}
}

// WithDataDir returns an option that sets the directory path for file-based persistence.
func WithDataDir(dir string) Option {
	return func(s Storage) {
		s.WithDataDir(dir)
	}
}

// WithBucket returns an option that sets the bucket for object storage backends.
func WithBucket(bucket string) Option {
	return func(s Storage) {
		s.WithBucket(bucket)
	}
}

// WithConnMaxIdleTime returns an option that sets the maximum amount of time a connection may be idle.
func WithConnMaxIdleTime(d time.Duration) Option {
	return func(s Storage) {
		s.WithConnMaxIdleTime(d)
	}
}

// WithConnMaxLifetime returns an option that sets the maximum amount of time a connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s Storage) {
		s.WithConnMaxLifetime(d)
	}
}

// WithMaxIdleConns returns an option that sets the maximum number of connections in the idle connection pool.
func WithMaxIdleConns(n int) Option {
	return func(s Storage) {
		s.WithMaxIdleConns(n)
	}
}

// WithMaxOpenConns returns an option that sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(s Storage) {
		s.WithMaxOpenConns(n)
	}
}
