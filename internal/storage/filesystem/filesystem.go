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
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"jacs/internal/storage/types"
)

// New creates and initializes a new filesystem-based storage backend.
// It creates the data directory if it doesn't exist with 0700 permissions.
// Returns an error if directory creation fails.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := new(Storage)

	for _, opt := range opts {
		opt(s)
	}

	if s.dataDir == "" {
		return nil, fmt.Errorf("filesystem storage requires a data directory")
	}

	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return s, nil
}

// Storage implements the types.Storage interface using the filesystem.
// Each document version lands in <dataDir>/<id>/<version>.json, written
// atomically via a temporary file and rename to ensure consistency.
type Storage struct {
	appID   string
	dataDir string
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN is a no-op for filesystem storage as it doesn't use database connections.
func (s *Storage) WithDSN(dsn string) {
	// no-op for this storage
}

// WithDataDir sets the directory path where document files will be stored.
func (s *Storage) WithDataDir(dir string) {
	s.dataDir = dir
}

// WithBucket is a no-op for filesystem storage as it doesn't use object storage.
func (s *Storage) WithBucket(bucket string) {
	// no-op for this storage
}

// WithConnMaxIdleTime is a no-op for filesystem storage.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	// no-op for this storage
}

// WithConnMaxLifetime is a no-op for filesystem storage.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	// no-op for this storage
}

// WithMaxIdleConns is a no-op for filesystem storage.
func (s *Storage) WithMaxIdleConns(n int) {
	// no-op for this storage
}

// WithMaxOpenConns is a no-op for filesystem storage.
func (s *Storage) WithMaxOpenConns(n int) {
	// no-op for this storage
}

// PutDocument persists one signed document version as a JSON file.
// The write is atomic: data goes to a temporary file which is fsynced and
// renamed over the target, so a version file is never partially written.
func (s *Storage) PutDocument(ctx context.Context, doc types.StoredDocument) error {
	dir := filepath.Join(s.dataDir, doc.ID)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	return s.saveFile(dir, doc.Version+".json", doc.Raw)
}

// GetDocument reads a document version file from the data directory.
func (s *Storage) GetDocument(ctx context.Context, id, version string) (types.StoredDocument, error) {
	path := filepath.Join(s.dataDir, id, version+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.StoredDocument{}, types.ErrNotFound
		}

		slog.Error("GetDocument: read file", "path", path, "error", err)

		return types.StoredDocument{}, fmt.Errorf("failed to read document %s:%s: %w", id, version, err)
	}

	return types.StoredDocument{ID: id, Version: version, Raw: data}, nil
}

// ListVersions lists all stored versions of a document identity, sorted by
// file modification time so later versions come last.
func (s *Storage) ListVersions(ctx context.Context, id string) ([]string, error) {
	dir := filepath.Join(s.dataDir, id)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.ErrNotFound
		}

		return nil, fmt.Errorf("failed to list versions of %s: %w", id, err)
	}

	type versionInfo struct {
		version string
		modTime time.Time
	}

	infos := make([]versionInfo, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		infos = append(infos, versionInfo{
			version: strings.TrimSuffix(entry.Name(), ".json"),
			modTime: info.ModTime(),
		})
	}

	if len(infos) == 0 {
		return nil, types.ErrNotFound
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.Before(infos[j].modTime)
	})

	versions := make([]string, 0, len(infos))
	for _, info := range infos {
		versions = append(versions, info.version)
	}

	return versions, nil
}

// Close is a no-op for filesystem storage as there are no connections to close.
func (s *Storage) Close() error {
	return nil
}

// ProbeLiveness returns an HTTP handler for Kubernetes liveness probe.
// It checks that the data directory still exists and is a directory.
// Returns 503 Service Unavailable if the check fails, 200 OK otherwise.
func (s *Storage) ProbeLiveness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := os.Stat(s.dataDir)
		if err != nil || !info.IsDir() {
			slog.Warn("liveness: NOT alive (fs)", "appID", s.appID, "dir", s.dataDir, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// It verifies the data directory is writable by creating and removing a
// probe file. Returns 503 Service Unavailable on failure, 200 OK otherwise.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		probe, err := os.CreateTemp(s.dataDir, ".readiness-*")
		if err != nil {
			slog.Warn("readiness: NOT ready (fs)", "appID", s.appID, "dir", s.dataDir, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_ = probe.Close()
		_ = os.Remove(probe.Name())

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as filesystem storage requires no initialization time.
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// saveFile writes data to a file atomically using a temporary file.
// Steps:
//  1. Creates a temporary file in the target directory
//  2. Writes data to the temporary file
//  3. Syncs to disk (fsync)
//  4. Renames temporary file to target file (atomic operation)
//
// This ensures the file is never partially written or corrupted.
func (s *Storage) saveFile(dir, name string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, fmt.Sprintf(".%s.tmp-*", name))
	if err != nil {
		return fmt.Errorf("saveFile: create temp file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("saveFile: write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("saveFile: sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("saveFile: close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("saveFile: rename temp file: %w", err)
	}

	return nil
}
