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
package agreement

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"jacs/internal/crypto"
	"jacs/internal/document"
	"jacs/internal/metrics"
)

// ErrorKind classifies agreement failures.
type ErrorKind string

const (
	// KindNotASigner indicates the signing agent is not in the agreement's signer set.
	KindNotASigner ErrorKind = "NotASigner"
	// KindAlreadySigned indicates the agent already holds a signature on the
	// agreement. Sign treats a duplicate as a warning no-op, so the engine
	// never returns this kind; it exists for callers that need to surface the
	// condition as an error.
	KindAlreadySigned ErrorKind = "AlreadySigned"
	// KindExpired indicates the agreement deadline has passed.
	KindExpired ErrorKind = "Expired"
	// KindDisallowedAlgorithm indicates the agent's algorithm is outside allowedAlgorithms.
	KindDisallowedAlgorithm ErrorKind = "DisallowedAlgorithm"
	// KindQuorumNotMet indicates fewer valid signatures than the quorum
	// requires. Check reports completeness through Status rather than an
	// error; the kind exists for callers that enforce completeness.
	KindQuorumNotMet ErrorKind = "QuorumNotMet"
)

// Error is a classified agreement error.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an agreement Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}

		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}

		err = u.Unwrap()
	}

	return false
}

// Record is the agreement object embedded under jacsAgreement.
type Record struct {
	AgentIDs          []string                   `json:"agentIDs"`
	Quorum            int                        `json:"quorum"`
	Signatures        []document.SignatureRecord `json:"signatures"`
	Question          string                     `json:"question,omitempty"`
	Context           string                     `json:"context,omitempty"`
	Deadline          string                     `json:"deadline,omitempty"`
	AllowedAlgorithms []string                   `json:"allowedAlgorithms,omitempty"`
}

// Options carries the optional constraints of a new agreement.
type Options struct {
	Question          string
	Context           string
	Quorum            int
	Deadline          *time.Time
	AllowedAlgorithms []crypto.Algorithm
}

// Status is the structured outcome of checking an agreement.
type Status struct {
	Complete bool     `json:"complete"`
	Expired  bool     `json:"expired"`
	Signers  []string `json:"signers"`
	Pending  []string `json:"pending"`
	Quorum   int      `json:"quorum"`
	Total    int      `json:"total"`
}

// Engine accumulates signatures on multi-signer documents.
// It sits above the document engine: the outer envelope is a regular signed
// document, the agreement record inside collects one signature per signer.
type Engine struct {
	docs      *document.Engine
	identity  document.Identity
	resolver  document.KeyResolver
	collector *metrics.Collector
}

// Option is a functional option type for configuring Engine instance.
type Option func(*Engine)

// WithCollector sets the metrics collector for tracking agreement transitions.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.collector = c
	}
}

// NewEngine creates an agreement engine bound to a document engine, the
// current signing identity, and a key resolver for checking other signers.
func NewEngine(docs *document.Engine, identity document.Identity, resolver document.KeyResolver, opts ...Option) *Engine {
	e := &Engine{
		docs:     docs,
		identity: identity,
		resolver: resolver,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create embeds an agreement record with an empty signature list into the
// payload and signs the outer document. The quorum defaults to the full
// signer set; a quorum above the signer count is rejected.
func (e *Engine) Create(payload map[string]any, signerIDs []string, opts Options) (map[string]any, error) {
	if len(signerIDs) == 0 {
		return nil, fmt.Errorf("agreement needs at least one signer")
	}

	unique := dedupe(signerIDs)

	quorum := opts.Quorum
	if quorum == 0 {
		quorum = len(unique)
	}

	if quorum < 1 || quorum > len(unique) {
		return nil, fmt.Errorf("quorum %d is outside 1..%d", quorum, len(unique))
	}

	record := Record{
		AgentIDs:   unique,
		Quorum:     quorum,
		Signatures: []document.SignatureRecord{},
		Question:   opts.Question,
		Context:    opts.Context,
	}

	if opts.Deadline != nil {
		record.Deadline = opts.Deadline.UTC().Format(document.TimeFormat)
	}

	for _, alg := range opts.AllowedAlgorithms {
		record.AllowedAlgorithms = append(record.AllowedAlgorithms, string(alg))
	}

	doc := document.Clone(payload)
	if doc == nil {
		doc = map[string]any{}
	}

	doc[document.FieldAgreement] = record.toMap()

	if _, ok := doc[document.FieldType]; !ok {
		doc[document.FieldType] = "agreement"
	}

	signed, err := e.docs.CreateDocument(doc, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("agreement created",
		"id", signed[document.FieldID],
		"signers", unique,
		"quorum", quorum,
		"deadline", record.Deadline,
	)

	return signed, nil
}

// Sign appends the current agent's signature to an agreement.
// The signature covers the payload and header fields but not the agreement
// record itself, so existing signatures stay valid. The outer envelope is
// then re-signed by this agent to certify the new agreement state.
// Signing is rejected past the deadline, by agents outside the signer set,
// and with algorithms outside allowedAlgorithms; signing twice is a no-op.
func (e *Engine) Sign(doc map[string]any) (map[string]any, error) {
	record, err := RecordFrom(doc)
	if err != nil {
		return nil, err
	}

	signer := e.identity.AgentID()

	if !contains(record.AgentIDs, signer) {
		e.collector.IncAgreementEvent("rejected")

		return nil, &Error{Kind: KindNotASigner,
			Err: fmt.Errorf("agent %s is not among the agreement signers", signer)}
	}

	if record.Deadline != "" {
		deadline, err := time.Parse(document.TimeFormat, record.Deadline)
		if err != nil {
			return nil, fmt.Errorf("invalid agreement deadline %q: %w", record.Deadline, err)
		}

		if e.identity.Now().After(deadline) {
			e.collector.IncAgreementEvent("expired")

			slog.Warn("agreement signing rejected: deadline passed",
				"id", doc[document.FieldID], "deadline", record.Deadline)

			return nil, &Error{Kind: KindExpired,
				Err: fmt.Errorf("agreement deadline %s has passed", record.Deadline)}
		}
	}

	if len(record.AllowedAlgorithms) > 0 && !contains(record.AllowedAlgorithms, string(e.identity.Algorithm())) {
		e.collector.IncAgreementEvent("rejected")

		return nil, &Error{Kind: KindDisallowedAlgorithm,
			Err: fmt.Errorf("algorithm %s is not allowed on this agreement", e.identity.Algorithm())}
	}

	for _, existing := range record.Signatures {
		if existing.AgentID == signer {
			slog.Warn("agent already signed agreement, ignoring",
				"id", doc[document.FieldID], "agent", signer)

			return document.Clone(doc), nil
		}
	}

	sig, _, err := e.docs.SignRecord(doc, coveredFields(doc))
	if err != nil {
		return nil, err
	}

	record.Signatures = append(record.Signatures, sig)

	next := document.Clone(doc)
	next[document.FieldAgreement] = record.toMap()

	signed, err := e.docs.Sign(next)
	if err != nil {
		return nil, err
	}

	e.collector.IncAgreementEvent("signed")

	slog.Info("agreement signed",
		"id", signed[document.FieldID],
		"agent", signer,
		"signatures", len(record.Signatures),
		"quorum", record.Quorum,
	)

	return signed, nil
}

// Check counts valid signatures by distinct agents in the signer set and
// compares against the quorum. Signatures dated past the deadline do not
// count; a passed deadline marks the whole agreement expired.
func (e *Engine) Check(doc map[string]any) (Status, error) {
	record, err := RecordFrom(doc)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Quorum: record.Quorum,
		Total:  len(record.AgentIDs),
	}

	var deadline time.Time
	if record.Deadline != "" {
		deadline, err = time.Parse(document.TimeFormat, record.Deadline)
		if err != nil {
			return Status{}, fmt.Errorf("invalid agreement deadline %q: %w", record.Deadline, err)
		}

		status.Expired = time.Now().UTC().After(deadline)
	}

	signed := make(map[string]bool, len(record.Signatures))

	for _, sig := range record.Signatures {
		if !contains(record.AgentIDs, sig.AgentID) || signed[sig.AgentID] {
			continue
		}

		if record.Deadline != "" {
			date, err := time.Parse(document.TimeFormat, sig.Date)
			if err != nil || date.After(deadline) {
				continue
			}
		}

		if errs := document.VerifyRecord(doc, sig, e.resolver, ""); len(errs) > 0 {
			slog.Warn("agreement signature is invalid",
				"id", doc[document.FieldID], "agent", sig.AgentID, "error", errs[0].String())
			continue
		}

		signed[sig.AgentID] = true
		status.Signers = append(status.Signers, sig.AgentID)
	}

	for _, id := range record.AgentIDs {
		if !signed[id] {
			status.Pending = append(status.Pending, id)
		}
	}

	sort.Strings(status.Signers)
	sort.Strings(status.Pending)

	status.Complete = len(status.Signers) >= record.Quorum

	if status.Complete {
		e.collector.IncAgreementEvent("completed")
	}

	return status, nil
}

// RecordFrom extracts the agreement record embedded in a document.
func RecordFrom(doc map[string]any) (Record, error) {
	raw, ok := doc[document.FieldAgreement]
	if !ok {
		return Record{}, fmt.Errorf("document has no %s field", document.FieldAgreement)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return Record{}, fmt.Errorf("failed to decode agreement record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(encoded, &record); err != nil {
		return Record{}, fmt.Errorf("failed to decode agreement record: %w", err)
	}

	if len(record.AgentIDs) == 0 {
		return Record{}, fmt.Errorf("agreement record has no signers")
	}

	return record, nil
}

// toMap converts the record to its embedded JSON object form.
func (r Record) toMap() map[string]any {
	raw, _ := json.Marshal(r)

	var out map[string]any
	_ = json.Unmarshal(raw, &out)

	return out
}

// coveredFields is the scope of one signer's agreement signature: every
// top-level key except the envelope signature, the content hash, and the
// agreement record itself. Later signatures must not invalidate earlier ones.
func coveredFields(doc map[string]any) []string {
	fields := make([]string, 0, len(doc))

	for key := range doc {
		switch key {
		case document.FieldSignature, document.FieldSha256, document.FieldAgreement:
			continue
		}

		fields = append(fields, key)
	}

	sort.Strings(fields)

	return fields
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}

	return false
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))

	for _, item := range list {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}

	return out
}
