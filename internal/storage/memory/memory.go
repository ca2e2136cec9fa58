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
package memory

import (
	"context"
	"net/http"
	"sync"
	"time"

	"jacs/internal/storage/types"
)

// New creates and initializes a new in-memory storage backend.
// This storage is ephemeral and all data is lost when the process terminates.
// Suitable for testing or development environments where persistence is not required.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := &Storage{
		documents: make(map[string]types.StoredDocument),
		versions:  make(map[string][]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Storage implements the types.Storage interface using in-memory maps.
// Documents are indexed by id:version; a per-identity version list preserves
// insertion order. All data is lost when the application restarts.
type Storage struct {
	mu    sync.RWMutex
	appID string

	documents map[string]types.StoredDocument
	versions  map[string][]string
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN is a no-op for in-memory storage as it doesn't use external connections.
func (s *Storage) WithDSN(dsn string) {
	// no-op for this storage
}

// WithDataDir is a no-op for in-memory storage as it doesn't persist to disk.
func (s *Storage) WithDataDir(dir string) {
	// no-op for this storage
}

// WithBucket is a no-op for in-memory storage as it doesn't use object storage.
func (s *Storage) WithBucket(bucket string) {
	// no-op for this storage
}

// WithConnMaxIdleTime is a no-op for in-memory storage.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	// no-op for this storage
}

// WithConnMaxLifetime is a no-op for in-memory storage.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	// no-op for this storage
}

// WithMaxIdleConns is a no-op for in-memory storage.
func (s *Storage) WithMaxIdleConns(n int) {
	// no-op for this storage
}

// WithMaxOpenConns is a no-op for in-memory storage.
func (s *Storage) WithMaxOpenConns(n int) {
	// no-op for this storage
}

// PutDocument stores one signed document version in memory.
// Storing the same id and version twice overwrites the raw bytes without
// duplicating the version list entry.
func (s *Storage) PutDocument(ctx context.Context, doc types.StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := doc.ID + ":" + doc.Version

	if _, exists := s.documents[key]; !exists {
		s.versions[doc.ID] = append(s.versions[doc.ID], doc.Version)
	}

	s.documents[key] = doc

	return nil
}

// GetDocument retrieves a document by identity and version.
func (s *Storage) GetDocument(ctx context.Context, id, version string) (types.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id+":"+version]
	if !ok {
		return types.StoredDocument{}, types.ErrNotFound
	}

	return doc, nil
}

// ListVersions lists all stored versions of a document identity in insertion order.
func (s *Storage) ListVersions(ctx context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.versions[id]
	if !ok {
		return nil, types.ErrNotFound
	}

	return append([]string(nil), versions...), nil
}

// Close is a no-op for in-memory storage as there are no resources to release.
func (s *Storage) Close() error {
	return nil
}

// ProbeLiveness returns an HTTP handler for Kubernetes liveness probe.
// Always returns 200 OK as in-memory storage has no external dependency to fail.
func (s *Storage) ProbeLiveness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// Always returns 200 OK as in-memory storage is ready as soon as it exists.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as in-memory storage requires no initialization time.
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
