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
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"jacs/internal/canonical"
	"jacs/internal/crypto"
	"jacs/internal/metrics"
	"jacs/internal/schema"
)

// Identity is the signing side of an agent as seen by the document engine.
// Implementations hold the private key; the engine never touches key material.
type Identity interface {
	// AgentID returns the signer's document identity (UUID).
	AgentID() string
	// AgentVersion returns the signer's current descriptor version (UUID).
	AgentVersion() string
	// Algorithm returns the signer's signing algorithm.
	Algorithm() crypto.Algorithm
	// PublicKeyPEM returns the signer's PEM-encoded public key.
	PublicKeyPEM() []byte
	// SignDigest signs a canonical content digest and returns raw signature bytes.
	SignDigest(digest []byte) ([]byte, error)
	// Now returns the next signing timestamp, monotonically non-decreasing
	// within the process.
	Now() time.Time
}

// KeyResolver resolves a signer's public key during verification.
// Lookup is by agent ID; the recorded key hash is passed through so resolvers
// backed by key services can pick among rotated keys.
type KeyResolver interface {
	ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error)
}

// Option is a functional option type for configuring Engine instance.
type Option func(*Engine)

// WithCollector sets the metrics collector for tracking signing and verification activity.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.collector = c
	}
}

// Engine creates, updates, signs and verifies generic documents, and manages
// version lineage. The engine is stateless between calls and safe for
// concurrent use.
type Engine struct {
	identity  Identity
	resolver  KeyResolver
	collector *metrics.Collector
}

// NewEngine creates a document engine bound to a signing identity and a key
// resolver for verification.
func NewEngine(identity Identity, resolver KeyResolver, opts ...Option) *Engine {
	e := &Engine{
		identity: identity,
		resolver: resolver,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateDocument wraps a JSON value in a fresh header and signs it.
// The new document gets a fresh jacsId and jacsVersion (equal, as this is the
// first version), original-version markers, and a signature over every
// top-level field except the signature itself and the content hash.
// If a validator is given, the document must conform before signing.
func (e *Engine) CreateDocument(value map[string]any, validator *schema.Validator) (map[string]any, error) {
	doc := Clone(value)
	if doc == nil {
		doc = map[string]any{}
	}

	id := uuid.NewString()
	version := id
	now := e.identity.Now().Format(TimeFormat)

	doc[FieldID] = id
	doc[FieldVersion] = version
	doc[FieldOriginalVersion] = version
	doc[FieldOriginalDate] = now
	doc[FieldVersionDate] = now
	delete(doc, FieldLastVersion)

	if _, ok := doc[FieldType]; !ok {
		doc[FieldType] = TypeHeader
	}

	if validator != nil {
		if err := validator.Validate(doc); err != nil {
			return nil, err
		}
	}

	return e.Sign(doc)
}

// UpdateDocument produces the next version of a signed document.
// The new version keeps jacsId and the original-version markers, points
// jacsLastVersion at the predecessor, gets a fresh jacsVersion, and is
// re-signed. The predecessor is left untouched.
func (e *Engine) UpdateDocument(previous, next map[string]any) (map[string]any, error) {
	prevID, ok := previous[FieldID].(string)
	if !ok || prevID == "" {
		return nil, fmt.Errorf("previous document has no %s", FieldID)
	}

	prevVersion, ok := previous[FieldVersion].(string)
	if !ok || prevVersion == "" {
		return nil, fmt.Errorf("previous document has no %s", FieldVersion)
	}

	if nextID, ok := next[FieldID].(string); ok && nextID != prevID {
		return nil, fmt.Errorf("document identity mismatch: %s != %s", nextID, prevID)
	}

	doc := Clone(next)

	doc[FieldID] = prevID
	doc[FieldLastVersion] = prevVersion
	doc[FieldVersion] = uuid.NewString()
	doc[FieldVersionDate] = e.identity.Now().Format(TimeFormat)
	doc[FieldOriginalVersion] = previous[FieldOriginalVersion]
	doc[FieldOriginalDate] = previous[FieldOriginalDate]

	if _, ok := doc[FieldType]; !ok {
		doc[FieldType] = previous[FieldType]
	}

	return e.Sign(doc)
}

// Sign embeds a fresh signature record into a copy of the document.
// The signature covers every top-level field except jacsSignature and
// jacsSha256; the canonical hash of those fields lands in jacsSha256.
// The input document is never mutated: an interrupted sign leaves no trace.
func (e *Engine) Sign(doc map[string]any) (map[string]any, error) {
	signed := Clone(doc)
	delete(signed, FieldSignature)
	delete(signed, FieldSha256)

	fields := CoveredFields(signed)

	record, digest, err := e.SignRecord(signed, fields)
	if err != nil {
		return nil, err
	}

	signed[FieldSha256] = hex.EncodeToString(digest[:])
	signed[FieldSignature] = record.ToMap()

	e.collector.IncSignature(string(e.identity.Algorithm()))

	slog.Info("document signed",
		"id", signed[FieldID],
		"version", signed[FieldVersion],
		"type", signed[FieldType],
		"algorithm", e.identity.Algorithm(),
	)

	return signed, nil
}

// SignRecord builds a signature record over the given top-level fields of a
// document without mutating it. Returns the record and the covered digest.
// Used directly by the agreement engine, where each signer covers its own
// field list.
func (e *Engine) SignRecord(doc map[string]any, fields []string) (SignatureRecord, [32]byte, error) {
	digest, err := canonical.HashFields(doc, fields)
	if err != nil {
		return SignatureRecord{}, digest, err
	}

	sig, err := e.identity.SignDigest(digest[:])
	if err != nil {
		return SignatureRecord{}, digest, fmt.Errorf("failed to sign document: %w", err)
	}

	record := SignatureRecord{
		AgentID:          e.identity.AgentID(),
		AgentVersion:     e.identity.AgentVersion(),
		Date:             e.identity.Now().Format(TimeFormat),
		Fields:           fields,
		PublicKeyHash:    crypto.HashPublicKey(e.identity.PublicKeyPEM()),
		Signature:        base64.StdEncoding.EncodeToString(sig),
		SigningAlgorithm: string(e.identity.Algorithm()),
	}

	return record, digest, nil
}

// VerifyDocument runs the full check on a signed document: schema (when a
// validator is given), content hash, key binding, and signature.
// It reports rather than fails: an invalid document yields a result with
// Valid=false and the collected errors.
func (e *Engine) VerifyDocument(doc map[string]any, validator *schema.Validator) VerificationResult {
	return VerifyWithResolver(doc, validator, e.resolver, e.collector)
}

// VerifyWithResolver is VerifyDocument without an engine: any holder of a key
// resolver can verify documents.
func VerifyWithResolver(doc map[string]any, validator *schema.Validator, resolver KeyResolver, collector *metrics.Collector) VerificationResult {
	result := VerificationResult{}

	record, err := SignatureFrom(doc)
	if err != nil {
		result.Errors = append(result.Errors, VerificationError{
			Kind:   ErrSignatureInvalid,
			Detail: err.Error(),
		})

		collector.IncVerification(false, "")
		return result
	}

	result.SignerID = record.AgentID

	if validator != nil {
		if err := validator.Validate(doc); err != nil {
			result.Errors = append(result.Errors, VerificationError{
				Kind:   ErrSchemaViolation,
				Detail: err.Error(),
			})
		}
	}

	wantSha, _ := doc[FieldSha256].(string)
	result.Errors = append(result.Errors, VerifyRecord(doc, record, resolver, wantSha)...)

	result.Valid = len(result.Errors) == 0

	collector.IncVerification(result.Valid, record.SigningAlgorithm)

	slog.Info("document verified",
		"id", doc[FieldID],
		"signer", record.AgentID,
		"valid", result.Valid,
		"errors", len(result.Errors),
	)

	return result
}

// VerifyRecord checks one signature record against a document.
// The canonical hash is recomputed over the record's own field list; when
// wantSha is non-empty it must match the recomputed hash (the document's
// primary signature), otherwise the record is an additional signature in an
// agreement and carries its own scope.
func VerifyRecord(doc map[string]any, record SignatureRecord, resolver KeyResolver, wantSha string) []VerificationError {
	var errs []VerificationError

	digest, err := canonical.HashFields(doc, record.Fields)
	if err != nil {
		return append(errs, VerificationError{
			Kind:   ErrHashMismatch,
			Detail: err.Error(),
		})
	}

	if wantSha != "" && hex.EncodeToString(digest[:]) != wantSha {
		errs = append(errs, VerificationError{
			Kind:   ErrHashMismatch,
			Detail: fmt.Sprintf("recorded %s does not match canonical content hash", FieldSha256),
		})
	}

	publicPEM, err := resolver.ResolvePublicKey(record.AgentID, record.PublicKeyHash)
	if err != nil {
		return append(errs, VerificationError{
			Kind:   ErrUnknownSigner,
			Detail: fmt.Sprintf("cannot resolve public key for agent %s: %v", record.AgentID, err),
		})
	}

	if crypto.HashPublicKey(publicPEM) != record.PublicKeyHash {
		return append(errs, VerificationError{
			Kind:   ErrKeyHashMismatch,
			Detail: "resolved public key does not match recorded publicKeyHash",
		})
	}

	alg, err := crypto.ParseAlgorithm(record.SigningAlgorithm)
	if err != nil {
		return append(errs, VerificationError{
			Kind:   ErrUnsupportedAlgorithm,
			Detail: err.Error(),
		})
	}

	sig, err := base64.StdEncoding.DecodeString(record.Signature)
	if err != nil {
		return append(errs, VerificationError{
			Kind:   ErrSignatureInvalid,
			Detail: fmt.Sprintf("signature is not valid base64: %v", err),
		})
	}

	ok, err := crypto.Verify(alg, publicPEM, digest[:], sig)
	if err != nil {
		kind := ErrSignatureInvalid
		if crypto.IsKind(err, crypto.KindUnsupportedAlgorithm) {
			kind = ErrUnsupportedAlgorithm
		}

		return append(errs, VerificationError{Kind: kind, Detail: err.Error()})
	}

	if !ok {
		errs = append(errs, VerificationError{
			Kind:   ErrSignatureInvalid,
			Detail: "signature does not verify against the resolved public key",
		})
	}

	return errs
}

// CoveredFields returns the top-level keys a document signature covers:
// everything except the signature record itself and the content hash, sorted
// lexicographically.
func CoveredFields(doc map[string]any) []string {
	fields := make([]string, 0, len(doc))

	for key := range doc {
		if key == FieldSignature || key == FieldSha256 {
			continue
		}

		fields = append(fields, key)
	}

	sort.Strings(fields)

	return fields
}
