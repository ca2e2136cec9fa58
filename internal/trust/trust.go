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
package trust

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jacs/internal/crypto"
	"jacs/internal/document"
)

// Policy controls how much a verifier demands beyond signature validity.
type Policy string

const (
	// PolicyOpen accepts any document with a valid signature.
	PolicyOpen Policy = "open"
	// PolicyVerified additionally requires the signer to declare the
	// provenance capability in its agent descriptor.
	PolicyVerified Policy = "verified"
	// PolicyStrict additionally requires the signer to be present in the
	// local trust store.
	PolicyStrict Policy = "strict"
)

// CapabilityProvenance is the service capability a signer must declare under
// the verified and strict policies.
const CapabilityProvenance = "jacs.provenance"

// ParsePolicy validates a policy tag, defaulting to verified when empty.
func ParsePolicy(tag string) (Policy, error) {
	switch Policy(tag) {
	case "":
		return PolicyVerified, nil

	case PolicyOpen, PolicyVerified, PolicyStrict:
		return Policy(tag), nil

	default:
		return "", fmt.Errorf("unknown trust policy %q", tag)
	}
}

// Entry is one trusted agent: its identity, verified public key, and metadata.
type Entry struct {
	AgentID       string         `json:"agent_id"`
	Name          string         `json:"name,omitempty"`
	PublicKeyPEM  []byte         `json:"public_key_pem"`
	PublicKeyHash string         `json:"public_key_hash"`
	TrustedAt     time.Time      `json:"trusted_at"`
	Descriptor    map[string]any `json:"descriptor,omitempty"`
}

// Store is a per-process trust registry mapping agent IDs to verified public
// keys. Reads are concurrent; writes hold an exclusive lock covering the
// verify-then-insert sequence so no torn entry is ever observable.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty trust store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
	}
}

// Add verifies an incoming agent descriptor's self-signature against the
// provided public key and, on success, inserts the agent into the store.
// The descriptor's own jacsId must match the identity in its signature record.
func (s *Store) Add(descriptor map[string]any, publicKeyPEM []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := document.SignatureFrom(descriptor)
	if err != nil {
		return Entry{}, fmt.Errorf("descriptor is not self-signed: %w", err)
	}

	agentID, _ := descriptor[document.FieldID].(string)
	if agentID == "" || agentID != record.AgentID {
		return Entry{}, fmt.Errorf("descriptor identity %q does not match signer %q", agentID, record.AgentID)
	}

	wantSha, _ := descriptor[document.FieldSha256].(string)

	errs := document.VerifyRecord(descriptor, record, staticResolver(publicKeyPEM), wantSha)
	if len(errs) > 0 {
		return Entry{}, fmt.Errorf("descriptor self-signature is invalid: %s", errs[0])
	}

	name, _ := descriptor["name"].(string)

	entry := Entry{
		AgentID:       agentID,
		Name:          name,
		PublicKeyPEM:  append([]byte(nil), publicKeyPEM...),
		PublicKeyHash: crypto.HashPublicKey(publicKeyPEM),
		TrustedAt:     time.Now().UTC(),
		Descriptor:    document.Clone(descriptor),
	}

	s.entries[agentID] = entry

	slog.Info("agent added to trust store", "agent", agentID, "name", name)

	return entry, nil
}

// Get retrieves a trusted agent by ID with thread-safe read access.
func (s *Store) Get(agentID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[agentID]
	return entry, ok
}

// Contains reports whether an agent is present in the store.
func (s *Store) Contains(agentID string) bool {
	_, ok := s.Get(agentID)
	return ok
}

// Remove drops an agent from the store. Removing an absent agent is a no-op.
func (s *Store) Remove(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, agentID)
}

// List returns a snapshot of all trusted agents.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}

	return out
}

// ResolvePublicKey implements document.KeyResolver over the store.
func (s *Store) ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error) {
	entry, ok := s.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s is not in the trust store", agentID)
	}

	return entry.PublicKeyPEM, nil
}

// HasCapability reports whether an agent descriptor declares a service
// capability under jacsServices. Service entries match by their "type" field
// or by membership in their "capabilities" list.
func HasCapability(descriptor map[string]any, capability string) bool {
	services, ok := descriptor["jacsServices"].([]any)
	if !ok {
		return false
	}

	for _, raw := range services {
		service, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		if t, _ := service["type"].(string); t == capability {
			return true
		}

		if caps, ok := service["capabilities"].([]any); ok {
			for _, c := range caps {
				if name, _ := c.(string); name == capability {
					return true
				}
			}
		}
	}

	return false
}

// staticResolver resolves every agent to one fixed public key.
// Used when verifying a descriptor whose key arrived alongside it.
type staticResolver []byte

// ResolvePublicKey implements document.KeyResolver.
func (r staticResolver) ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error) {
	return []byte(r), nil
}
