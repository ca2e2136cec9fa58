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
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"jacs/internal/storage/postgres/migrations"
	"jacs/internal/storage/types"
)

// New creates and initializes a new PostgreSQL storage backend.
// It opens a connection to PostgreSQL using the provided DSN, validates connectivity,
// and runs database migrations to ensure the schema is up to date.
// Returns an error if connection fails or migrations cannot be applied.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := new(Storage)

	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres dsn: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.SetConnMaxIdleTime(s.connMaxIdleTime)
	db.SetConnMaxLifetime(s.connMaxLifetime)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetMaxOpenConns(s.maxOpenConns)

	s.client = db
	s.ctx = ctx

	return s, nil
}

// Storage implements the types.Storage interface using PostgreSQL as the backend.
// Document versions live in the jacs_documents table keyed by (id, version);
// re-putting an existing version updates its raw bytes in place.
type Storage struct {
	ctx             context.Context
	appID           string
	client          *sql.DB
	dsn             string
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
	maxIdleConns    int
	maxOpenConns    int
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN sets the PostgreSQL connection string (DSN).
func (s *Storage) WithDSN(dsn string) {
	s.dsn = dsn
}

// WithDataDir is a no-op for PostgreSQL storage as it doesn't use file persistence.
func (s *Storage) WithDataDir(dir string) {
	// no-op for this storage
}

// WithBucket is a no-op for PostgreSQL storage as it doesn't use object storage.
func (s *Storage) WithBucket(bucket string) {
	// no-op for this storage
}

// WithConnMaxIdleTime sets the maximum amount of time a connection may be idle.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	s.connMaxIdleTime = d
}

// WithConnMaxLifetime sets the maximum amount of time a connection may be reused.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	s.connMaxLifetime = d
}

// WithMaxIdleConns sets the maximum number of connections in the idle connection pool.
func (s *Storage) WithMaxIdleConns(n int) {
	s.maxIdleConns = n
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func (s *Storage) WithMaxOpenConns(n int) {
	s.maxOpenConns = n
}

// PutDocument persists one signed document version to PostgreSQL.
// Uses INSERT ... ON CONFLICT DO UPDATE keyed on (id, version) so a re-put
// of the same version updates the raw bytes without duplicating the row.
func (s *Storage) PutDocument(ctx context.Context, doc types.StoredDocument) error {
	const q = `
INSERT INTO jacs_documents (
    app_id,
    id,
    version,
    doc_type,
    raw
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id, version) DO UPDATE
SET
    doc_type   = EXCLUDED.doc_type,
    raw        = EXCLUDED.raw,
    updated_at = now();
`

	if _, err := s.client.ExecContext(ctx, q, s.appID, doc.ID, doc.Version, doc.Type, doc.Raw); err != nil {
		slog.Error("failed to save document to postgres", "error", err, "id", doc.ID, "version", doc.Version)
		return fmt.Errorf("failed to save document to postgres: %w", err)
	}

	return nil
}

// GetDocument retrieves a document version from PostgreSQL.
func (s *Storage) GetDocument(ctx context.Context, id, version string) (types.StoredDocument, error) {
	const q = `
SELECT doc_type, raw
FROM jacs_documents
WHERE id = $1
  AND version = $2
`

	doc := types.StoredDocument{ID: id, Version: version}

	var docType sql.NullString

	err := s.client.QueryRowContext(ctx, q, id, version).Scan(&docType, &doc.Raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.StoredDocument{}, types.ErrNotFound
		}

		slog.Error("failed to query document from postgres", "error", err, "id", id, "version", version)

		return types.StoredDocument{}, fmt.Errorf("failed to query document from postgres: %w", err)
	}

	doc.Type = docType.String

	return doc, nil
}

// ListVersions lists all stored versions of a document identity, ordered by
// insertion time.
func (s *Storage) ListVersions(ctx context.Context, id string) ([]string, error) {
	const q = `
SELECT version
FROM jacs_documents
WHERE id = $1
ORDER BY created_at ASC
`

	rows, err := s.client.QueryContext(ctx, q, id)
	if err != nil {
		slog.Error("failed to list versions from postgres", "error", err, "id", id)
		return nil, fmt.Errorf("failed to list versions from postgres: %w", err)
	}
	defer rows.Close()

	var versions []string

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}

		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}

	if len(versions) == 0 {
		return nil, types.ErrNotFound
	}

	return versions, nil
}

// Close releases the PostgreSQL connection pool.
func (s *Storage) Close() error {
	return s.client.Close()
}

// ProbeLiveness returns an HTTP handler for Kubernetes liveness probe.
// Pings the database; returns 503 Service Unavailable when the ping fails.
func (s *Storage) ProbeLiveness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.client.PingContext(r.Context()); err != nil {
			slog.Warn("liveness: NOT alive (postgres)", "appID", s.appID, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// Runs a trivial query; returns 503 Service Unavailable when it fails.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var one int
		if err := s.client.QueryRowContext(r.Context(), "SELECT 1").Scan(&one); err != nil {
			slog.Warn("readiness: NOT ready (postgres)", "appID", s.appID, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as migrations ran during initialization.
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
