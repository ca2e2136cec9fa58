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
	"encoding/json"
	"fmt"
	"time"
)

// Reserved header fields present in every signed document.
const (
	FieldID               = "jacsId"
	FieldVersion          = "jacsVersion"
	FieldLastVersion      = "jacsLastVersion"
	FieldOriginalVersion  = "jacsOriginalVersion"
	FieldOriginalDate     = "jacsOriginalDate"
	FieldVersionDate      = "jacsVersionDate"
	FieldSha256           = "jacsSha256"
	FieldSignature        = "jacsSignature"
	FieldType             = "jacsType"
	FieldAgreement        = "jacsAgreement"
	FieldParentSignatures = "jacsParentSignatures"
)

// Document type tags. The set is open; callers may supply their own.
const (
	TypeAgent    = "agent"
	TypeHeader   = "header"
	TypeMessage  = "message"
	TypeTask     = "task"
	TypeArtifact = "artifact"
)

// TimeFormat is the ISO-8601 profile used for all document timestamps.
const TimeFormat = time.RFC3339

// SignatureRecord is the embedded object recording who signed a document,
// when, over which fields, and with which algorithm.
type SignatureRecord struct {
	AgentID          string   `json:"agentID"`
	AgentVersion     string   `json:"agentVersion"`
	Date             string   `json:"date"`
	Fields           []string `json:"fields"`
	PublicKeyHash    string   `json:"publicKeyHash"`
	Signature        string   `json:"signature"`
	SigningAlgorithm string   `json:"signingAlgorithm"`
}

// ToMap converts the record to its embedded JSON object form.
func (r SignatureRecord) ToMap() map[string]any {
	fields := make([]any, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = f
	}

	return map[string]any{
		"agentID":          r.AgentID,
		"agentVersion":     r.AgentVersion,
		"date":             r.Date,
		"fields":           fields,
		"publicKeyHash":    r.PublicKeyHash,
		"signature":        r.Signature,
		"signingAlgorithm": r.SigningAlgorithm,
	}
}

// RecordFromValue decodes a signature record from its embedded object form.
func RecordFromValue(value any) (SignatureRecord, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return SignatureRecord{}, fmt.Errorf("failed to decode signature record: %w", err)
	}

	var record SignatureRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return SignatureRecord{}, fmt.Errorf("failed to decode signature record: %w", err)
	}

	if record.AgentID == "" || record.Signature == "" || record.SigningAlgorithm == "" {
		return SignatureRecord{}, fmt.Errorf("signature record is missing required fields")
	}

	return record, nil
}

// SignatureFrom extracts the document's own signature record from its header.
func SignatureFrom(doc map[string]any) (SignatureRecord, error) {
	raw, ok := doc[FieldSignature]
	if !ok {
		return SignatureRecord{}, fmt.Errorf("document has no %s field", FieldSignature)
	}

	return RecordFromValue(raw)
}

// VerificationErrorKind classifies verification failures.
type VerificationErrorKind string

const (
	ErrHashMismatch         VerificationErrorKind = "HashMismatch"
	ErrSignatureInvalid     VerificationErrorKind = "SignatureInvalid"
	ErrKeyHashMismatch      VerificationErrorKind = "KeyHashMismatch"
	ErrUnknownSigner        VerificationErrorKind = "UnknownSigner"
	ErrUnsupportedAlgorithm VerificationErrorKind = "UnsupportedAlgorithm"
	ErrSchemaViolation      VerificationErrorKind = "SchemaViolation"
	ErrUntrustedSigner      VerificationErrorKind = "UntrustedSigner"
)

// VerificationError is one failed check attached to a verification result.
type VerificationError struct {
	Kind   VerificationErrorKind `json:"kind"`
	Detail string                `json:"detail,omitempty"`
}

// String renders the error for logs and CLI output.
func (e VerificationError) String() string {
	if e.Detail == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// VerificationResult is the structured outcome of verifying a document.
// Verification never fails with an error on an invalid document; it reports.
type VerificationResult struct {
	Valid    bool                `json:"valid"`
	SignerID string              `json:"signer_id,omitempty"`
	Errors   []VerificationError `json:"errors,omitempty"`
}

// HasKind reports whether the result carries an error of the given kind.
func (r VerificationResult) HasKind(kind VerificationErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}

	return false
}

// Clone deep-copies a decoded JSON document.
// Signed documents are value types; every hand-off copies.
func Clone(doc map[string]any) map[string]any {
	out, _ := cloneValue(doc).(map[string]any)
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out

	default:
		return v
	}
}
