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
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"jacs/internal/storage/types"
)

// New creates and initializes a new S3-compatible storage backend.
// Credentials come from the default AWS chain; a non-empty DSN is used as a
// custom endpoint with path-style addressing (required for MinIO and most
// S3-compatible services). The bucket must exist or be creatable.
func New(ctx context.Context, opts ...types.Option) (types.Storage, error) {
	s := new(Storage)

	for _, opt := range opts {
		opt(s)
	}

	if s.bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket name")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if s.dsn != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.dsn)
			o.UsePathStyle = true
		})
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		if _, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); createErr != nil {
			return nil, fmt.Errorf("bucket %s does not exist and failed to create it: %w", s.bucket, createErr)
		}

		slog.Info("s3 bucket created", "bucket", s.bucket)
	}

	return s, nil
}

// Storage implements the types.Storage interface over an S3-compatible
// object store. Document versions live under documents/<id>/<version>.json.
type Storage struct {
	appID  string
	bucket string
	client *s3.Client
	dsn    string
}

// WithAppID sets the application ID for this storage instance.
func (s *Storage) WithAppID(appID string) {
	s.appID = appID
}

// WithDSN sets the custom endpoint URL for S3-compatible services.
func (s *Storage) WithDSN(dsn string) {
	s.dsn = dsn
}

// WithDataDir is a no-op for S3 storage as it doesn't use local files.
func (s *Storage) WithDataDir(dir string) {
	// no-op for this storage
}

// WithBucket sets the bucket name documents are stored in.
func (s *Storage) WithBucket(bucket string) {
	s.bucket = bucket
}

// WithConnMaxIdleTime is a no-op for S3 storage.
func (s *Storage) WithConnMaxIdleTime(d time.Duration) {
	// no-op for this storage
}

// WithConnMaxLifetime is a no-op for S3 storage.
func (s *Storage) WithConnMaxLifetime(d time.Duration) {
	// no-op for this storage
}

// WithMaxIdleConns is a no-op for S3 storage.
func (s *Storage) WithMaxIdleConns(n int) {
	// no-op for this storage
}

// WithMaxOpenConns is a no-op for S3 storage.
func (s *Storage) WithMaxOpenConns(n int) {
	// no-op for this storage
}

// PutDocument uploads one signed document version as a JSON object.
func (s *Storage) PutDocument(ctx context.Context, doc types.StoredDocument) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(doc.ID, doc.Version)),
		Body:          bytes.NewReader(doc.Raw),
		ContentLength: aws.Int64(int64(len(doc.Raw))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		slog.Error("failed to upload document to s3", "error", err, "id", doc.ID, "version", doc.Version)
		return fmt.Errorf("failed to upload document to s3: %w", err)
	}

	slog.Debug("document uploaded to s3", "bucket", s.bucket, "id", doc.ID, "version", doc.Version)

	return nil
}

// GetDocument downloads a document version object.
func (s *Storage) GetDocument(ctx context.Context, id, version string) (types.StoredDocument, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(id, version)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return types.StoredDocument{}, types.ErrNotFound
		}

		slog.Error("failed to download document from s3", "error", err, "id", id, "version", version)

		return types.StoredDocument{}, fmt.Errorf("failed to download document from s3: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return types.StoredDocument{}, fmt.Errorf("failed to read document body from s3: %w", err)
	}

	return types.StoredDocument{ID: id, Version: version, Raw: raw}, nil
}

// ListVersions lists all stored versions of a document identity by prefix,
// sorted by object last-modified time.
func (s *Storage) ListVersions(ctx context.Context, id string) ([]string, error) {
	prefix := fmt.Sprintf("documents/%s/", id)

	type versionInfo struct {
		version  string
		modified time.Time
	}

	var infos []versionInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents in s3: %w", err)
		}

		for _, object := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(object.Key), prefix)
			if !strings.HasSuffix(name, ".json") {
				continue
			}

			info := versionInfo{version: strings.TrimSuffix(name, ".json")}
			if object.LastModified != nil {
				info.modified = *object.LastModified
			}

			infos = append(infos, info)
		}
	}

	if len(infos) == 0 {
		return nil, types.ErrNotFound
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modified.Before(infos[j].modified)
	})

	versions := make([]string, 0, len(infos))
	for _, info := range infos {
		versions = append(versions, info.version)
	}

	return versions, nil
}

// Close is a no-op for S3 storage as the SDK client holds no persistent connections.
func (s *Storage) Close() error {
	return nil
}

// ProbeLiveness returns an HTTP handler for Kubernetes liveness probe.
// Heads the bucket; returns 503 Service Unavailable on failure.
func (s *Storage) ProbeLiveness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.client.HeadBucket(r.Context(), &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
			slog.Warn("liveness: NOT alive (s3)", "appID", s.appID, "bucket", s.bucket, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeReadiness returns an HTTP handler for Kubernetes readiness probe.
// Heads the bucket; returns 503 Service Unavailable on failure.
func (s *Storage) ProbeReadiness() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.client.HeadBucket(r.Context(), &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
			slog.Warn("readiness: NOT ready (s3)", "appID", s.appID, "bucket", s.bucket, "error", err)

			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// ProbeStartup returns an HTTP handler for Kubernetes startup probe.
// Always returns 200 OK as the bucket was validated at initialization.
func (s *Storage) ProbeStartup() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func objectKey(id, version string) string {
	return fmt.Sprintf("documents/%s/%s.json", id, version)
}
