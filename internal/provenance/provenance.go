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
package provenance

import (
	"fmt"
	"log/slog"

	"jacs/internal/crypto"
	"jacs/internal/document"
)

// Engine wraps arbitrary payloads as signed artifacts and assembles chains
// of custody out of them. Parent links are signature records, not document
// references: a chain can be checked even when parent documents are absent.
type Engine struct {
	docs     *document.Engine
	resolver document.KeyResolver
}

// NewEngine creates a provenance engine on top of a document engine.
func NewEngine(docs *document.Engine, resolver document.KeyResolver) *Engine {
	return &Engine{
		docs:     docs,
		resolver: resolver,
	}
}

// WrapArtifact wraps a payload in a minimal signed document shell.
// Each parent's signature record is carried under jacsParentSignatures,
// linking this artifact to its ancestry.
func (e *Engine) WrapArtifact(payload any, docType string, parents []map[string]any) (map[string]any, error) {
	if docType == "" {
		docType = document.TypeArtifact
	}

	doc := map[string]any{
		"payload":          payload,
		document.FieldType: docType,
	}

	if len(parents) > 0 {
		links := make([]any, 0, len(parents))

		for i, parent := range parents {
			record, err := document.SignatureFrom(parent)
			if err != nil {
				return nil, fmt.Errorf("parent %d is not signed: %w", i, err)
			}

			links = append(links, record.ToMap())
		}

		doc[document.FieldParentSignatures] = links
	}

	signed, err := e.docs.CreateDocument(doc, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("artifact wrapped",
		"id", signed[document.FieldID],
		"type", docType,
		"parents", len(parents),
	)

	return signed, nil
}

// VerifyArtifact checks an artifact's own signature and each parent link.
// A parent link is checked against the resolved public key of its signer:
// the key must resolve and must match the recorded key hash. The parent
// document itself may be absent, so its content hash cannot be rechecked here.
func (e *Engine) VerifyArtifact(doc map[string]any) document.VerificationResult {
	result := e.docs.VerifyDocument(doc, nil)

	for _, record := range ParentRecords(doc) {
		if errs := verifyParentLink(record, e.resolver); len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
		}
	}

	result.Valid = len(result.Errors) == 0

	return result
}

// ChainStep is one artifact's place in an ordered chain of custody.
type ChainStep struct {
	DocumentID string                       `json:"documentID"`
	Version    string                       `json:"version"`
	SignerID   string                       `json:"signerID"`
	Date       string                       `json:"date"`
	Valid      bool                         `json:"valid"`
	Errors     []document.VerificationError `json:"errors,omitempty"`
}

// CreateChain orders artifacts by their parent relation and signs a chain
// document recording each step's signer, timestamp and validity.
// Artifacts with no parents in the list come first; an artifact never
// precedes its parent. A cyclic parent relation is rejected.
func (e *Engine) CreateChain(artifacts []map[string]any) (map[string]any, error) {
	ordered, err := orderByParents(artifacts)
	if err != nil {
		return nil, err
	}

	steps := make([]any, 0, len(ordered))

	for _, artifact := range ordered {
		step := ChainStep{}

		if id, ok := artifact[document.FieldID].(string); ok {
			step.DocumentID = id
		}

		if version, ok := artifact[document.FieldVersion].(string); ok {
			step.Version = version
		}

		if record, err := document.SignatureFrom(artifact); err == nil {
			step.SignerID = record.AgentID
			step.Date = record.Date
		}

		result := e.VerifyArtifact(artifact)
		step.Valid = result.Valid
		step.Errors = result.Errors

		steps = append(steps, map[string]any{
			"documentID": step.DocumentID,
			"version":    step.Version,
			"signerID":   step.SignerID,
			"date":       step.Date,
			"valid":      step.Valid,
			"errors":     errorStrings(step.Errors),
		})
	}

	chain := map[string]any{
		"steps":            steps,
		document.FieldType: "chain",
	}

	return e.docs.CreateDocument(chain, nil)
}

// ParentRecords extracts the parent signature records carried by an artifact.
func ParentRecords(doc map[string]any) []document.SignatureRecord {
	raw, ok := doc[document.FieldParentSignatures].([]any)
	if !ok {
		return nil
	}

	records := make([]document.SignatureRecord, 0, len(raw))

	for _, item := range raw {
		record, err := document.RecordFromValue(item)
		if err != nil {
			continue
		}

		records = append(records, record)
	}

	return records
}

// verifyParentLink checks a parent signature record against the resolvable
// key of its signer.
func verifyParentLink(record document.SignatureRecord, resolver document.KeyResolver) []document.VerificationError {
	publicPEM, err := resolver.ResolvePublicKey(record.AgentID, record.PublicKeyHash)
	if err != nil {
		return []document.VerificationError{{
			Kind:   document.ErrUnknownSigner,
			Detail: fmt.Sprintf("parent signer %s: %v", record.AgentID, err),
		}}
	}

	if crypto.HashPublicKey(publicPEM) != record.PublicKeyHash {
		return []document.VerificationError{{
			Kind:   document.ErrKeyHashMismatch,
			Detail: fmt.Sprintf("parent signer %s: key hash does not match", record.AgentID),
		}}
	}

	return nil
}

// orderByParents topologically sorts artifacts along the parent relation,
// keeping the input order among unrelated artifacts.
func orderByParents(artifacts []map[string]any) ([]map[string]any, error) {
	bySignature := make(map[string]int, len(artifacts))

	for i, artifact := range artifacts {
		if record, err := document.SignatureFrom(artifact); err == nil {
			bySignature[record.Signature] = i
		}
	}

	// parentsOf[i] holds indices of parents present in the input list.
	parentsOf := make(map[int][]int, len(artifacts))

	for i, artifact := range artifacts {
		for _, record := range ParentRecords(artifact) {
			if j, ok := bySignature[record.Signature]; ok {
				parentsOf[i] = append(parentsOf[i], j)
			}
		}
	}

	placed := make([]bool, len(artifacts))
	ordered := make([]map[string]any, 0, len(artifacts))

	for len(ordered) < len(artifacts) {
		progress := false

		for i := range artifacts {
			if placed[i] {
				continue
			}

			ready := true
			for _, j := range parentsOf[i] {
				if !placed[j] {
					ready = false
					break
				}
			}

			if ready {
				placed[i] = true
				ordered = append(ordered, artifacts[i])
				progress = true
			}
		}

		if !progress {
			return nil, fmt.Errorf("artifact parent relation contains a cycle")
		}
	}

	return ordered, nil
}

func errorStrings(errs []document.VerificationError) []any {
	out := make([]any, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.String())
	}

	return out
}
