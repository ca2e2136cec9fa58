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
package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jacs/internal/config"
	"jacs/internal/crypto"
	"jacs/internal/document"
	"jacs/internal/metrics"
	"jacs/internal/schema"
	"jacs/internal/trust"
)

// DescriptorFilename is the agent descriptor file within the key directory.
// The descriptor always lives next to the keys, never in document storage.
const DescriptorFilename = "jacs.agent.json"

// Agent types a descriptor may declare.
const (
	TypeHuman    = "human"
	TypeHumanOrg = "human-org"
	TypeHybrid   = "hybrid"
	TypeAI       = "ai"
)

// State tracks the lifecycle of an Agent instance.
// Only a Loaded agent accepts signing operations; Disposed zeroes key material.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateDisposed
)

// IdentityError reports that an agent could not be created, loaded or used.
type IdentityError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Option is a functional option type for configuring Agent instance.
type Option func(*Agent)

// WithTrustStore sets the trust registry consulted when resolving other
// agents' keys and enforcing the strict policy.
func WithTrustStore(store *trust.Store) Option {
	return func(a *Agent) {
		a.trustStore = store
	}
}

// WithPolicy sets the verification policy. Defaults to verified, or strict
// when the configuration enables security.
func WithPolicy(policy trust.Policy) Option {
	return func(a *Agent) {
		a.policy = policy
	}
}

// WithCollector sets the Prometheus metrics collector for tracking signing activity.
func WithCollector(c *metrics.Collector) Option {
	return func(a *Agent) {
		a.collector = c
	}
}

// Agent is a signer/verifier identity: a UUID-identified descriptor plus a
// keypair. The private key lives only in this struct and is zeroed on
// disposal. An Agent is safe for concurrent use; multiple independent agents
// may coexist in one process.
// mu guards state, key material, version and descriptor; updateMu serializes
// descriptor updates so version lineage cannot interleave.
type Agent struct {
	mu       sync.RWMutex
	dateMu   sync.Mutex
	updateMu sync.Mutex

	cfg        config.Config
	state      State
	id         string
	version    string
	name       string
	agentType  string
	alg        crypto.Algorithm
	publicPEM  []byte
	privatePEM []byte
	descriptor map[string]any
	lastDate   time.Time

	trustStore *trust.Store
	policy     trust.Policy
	collector  *metrics.Collector
	engine     *document.Engine
}

// Create generates a fresh keypair, builds a self-signed agent descriptor,
// and persists both through the key-directory collaborator.
// The private key is encrypted at rest when the configured private key
// filename carries the .enc suffix; a password is then mandatory.
func Create(cfg config.Config, name, agentType, password string, opts ...Option) (*Agent, error) {
	alg, err := crypto.ParseAlgorithm(cfg.KeyAlgorithm)
	if err != nil {
		return nil, &IdentityError{Op: "create", Err: err}
	}

	if agentType == "" {
		agentType = TypeAI
	}

	switch agentType {
	case TypeHuman, TypeHumanOrg, TypeHybrid, TypeAI:
	default:
		return nil, &IdentityError{Op: "create", Err: fmt.Errorf("unknown agent type %q", agentType)}
	}

	publicPEM, privatePEM, err := crypto.GenerateKeypair(alg)
	if err != nil {
		return nil, &IdentityError{Op: "create", Err: err}
	}

	atRest := privatePEM

	encrypted := strings.HasSuffix(cfg.PrivateKeyFilename, ".enc")
	switch {
	case encrypted && password == "":
		return nil, &IdentityError{Op: "create",
			Err: fmt.Errorf("private key filename %q requires a password", cfg.PrivateKeyFilename)}

	case !encrypted && password != "":
		return nil, &IdentityError{Op: "create",
			Err: fmt.Errorf("password given but filename %q has no .enc suffix", cfg.PrivateKeyFilename)}

	case encrypted:
		atRest, err = crypto.EncryptPrivateKey(privatePEM, password)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.KeyDirectory, 0700); err != nil {
		return nil, &IdentityError{Op: "create", Err: fmt.Errorf("failed to create key directory: %w", err)}
	}

	if err := os.WriteFile(filepath.Join(cfg.KeyDirectory, cfg.PublicKeyFilename), publicPEM, 0644); err != nil {
		return nil, &IdentityError{Op: "create", Err: fmt.Errorf("failed to write public key: %w", err)}
	}

	if err := os.WriteFile(filepath.Join(cfg.KeyDirectory, cfg.PrivateKeyFilename), atRest, 0600); err != nil {
		return nil, &IdentityError{Op: "create", Err: fmt.Errorf("failed to write private key: %w", err)}
	}

	a := newAgent(cfg, alg, publicPEM, privatePEM, opts...)
	a.name = name
	a.agentType = agentType
	a.id = uuid.NewString()
	a.version = uuid.NewString()

	now := a.Now().Format(document.TimeFormat)

	descriptor := map[string]any{
		document.FieldID:              a.id,
		document.FieldVersion:         a.version,
		document.FieldOriginalVersion: a.version,
		document.FieldOriginalDate:    now,
		document.FieldVersionDate:     now,
		document.FieldType:            document.TypeAgent,
		"jacsAgentType":               agentType,
		"name":                        name,
		"jacsServices": []any{
			map[string]any{"type": trust.CapabilityProvenance},
		},
	}

	signed, err := a.engine.Sign(descriptor)
	if err != nil {
		return nil, err
	}

	a.descriptor = signed

	if err := a.writeDescriptor(); err != nil {
		return nil, err
	}

	slog.Info("agent created", "agent", a.id, "name", name, "algorithm", alg)

	return a, nil
}

// Load reads an existing agent from the key directory: public key, private
// key (decrypted with the configured password when stored encrypted), and
// the self-signed descriptor, which must verify against its own key.
func Load(cfg config.Config, opts ...Option) (*Agent, error) {
	publicPEM, err := os.ReadFile(filepath.Join(cfg.KeyDirectory, cfg.PublicKeyFilename))
	if err != nil {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("failed to read public key: %w", err)}
	}

	atRest, err := os.ReadFile(filepath.Join(cfg.KeyDirectory, cfg.PrivateKeyFilename))
	if err != nil {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("failed to read private key: %w", err)}
	}

	privatePEM := atRest

	if strings.HasSuffix(cfg.PrivateKeyFilename, ".enc") {
		password := cfg.PrivateKeyPassword
		if password == "" {
			return nil, &IdentityError{Op: "load",
				Err: fmt.Errorf("private key is encrypted and no password is configured")}
		}

		privatePEM, err = crypto.DecryptPrivateKey(atRest, password)
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(filepath.Join(cfg.KeyDirectory, DescriptorFilename))
	if err != nil {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("failed to read agent descriptor: %w", err)}
	}

	var descriptor map[string]any
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("failed to decode agent descriptor: %w", err)}
	}

	record, err := document.SignatureFrom(descriptor)
	if err != nil {
		return nil, &IdentityError{Op: "load", Err: err}
	}

	alg, err := crypto.ParseAlgorithm(record.SigningAlgorithm)
	if err != nil {
		return nil, &IdentityError{Op: "load", Err: err}
	}

	id, _ := descriptor[document.FieldID].(string)
	version, _ := descriptor[document.FieldVersion].(string)

	if id == "" || version == "" {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("agent descriptor has no identity")}
	}

	if cfg.AgentIDAndVersion != "" {
		want := strings.SplitN(cfg.AgentIDAndVersion, ":", 2)

		if want[0] != id || (len(want) == 2 && want[1] != version) {
			return nil, &IdentityError{Op: "load",
				Err: fmt.Errorf("descriptor is %s:%s, config expects %s", id, version, cfg.AgentIDAndVersion)}
		}
	}

	a := newAgent(cfg, alg, publicPEM, privatePEM, opts...)
	a.id = id
	a.version = version
	a.descriptor = descriptor
	a.name, _ = descriptor["name"].(string)
	a.agentType, _ = descriptor["jacsAgentType"].(string)

	if result := a.VerifySelf(); !result.Valid {
		crypto.Zero(a.privatePEM)

		return nil, &IdentityError{Op: "load",
			Err: fmt.Errorf("agent descriptor failed self-verification: %v", result.Errors)}
	}

	slog.Info("agent loaded", "agent", a.id, "version", a.version, "algorithm", alg)

	return a, nil
}

// newAgent assembles a Loaded agent around key material and wires its
// document engine. The policy defaults follow the configuration: verified,
// or strict when jacs_use_security is enabled.
func newAgent(cfg config.Config, alg crypto.Algorithm, publicPEM, privatePEM []byte, opts ...Option) *Agent {
	a := &Agent{
		cfg:        cfg,
		state:      StateLoaded,
		alg:        alg,
		publicPEM:  publicPEM,
		privatePEM: privatePEM,
		policy:     trust.PolicyVerified,
	}

	if cfg.UseSecurity {
		a.policy = trust.PolicyStrict
	}

	for _, opt := range opts {
		opt(a)
	}

	a.engine = document.NewEngine(a, a, document.WithCollector(a.collector))

	return a
}

// ID returns the agent's stable document identity.
func (a *Agent) ID() string {
	return a.id
}

// Name returns the agent's human-readable name.
func (a *Agent) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.name
}

// State returns the lifecycle state of this instance.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.state
}

// Engine exposes the agent's document engine for callers composing higher
// level flows (agreements, provenance).
func (a *Agent) Engine() *document.Engine {
	return a.engine
}

// TrustStore returns the trust registry this agent consults, or nil.
func (a *Agent) TrustStore() *trust.Store {
	return a.trustStore
}

// Descriptor returns a copy of the agent's self-signed descriptor.
func (a *Agent) Descriptor() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return document.Clone(a.descriptor)
}

// PublicKey returns the agent's PEM-encoded public key.
func (a *Agent) PublicKey() []byte {
	return append([]byte(nil), a.publicPEM...)
}

// VerifySelf re-verifies the loaded agent's signature over itself.
func (a *Agent) VerifySelf() document.VerificationResult {
	return document.VerifyWithResolver(a.Descriptor(), nil, a, a.collector)
}

// SignMessage wraps a JSON value in a fresh signed header.
// The signature covers all of the value's top-level keys plus the header.
func (a *Agent) SignMessage(value map[string]any) (map[string]any, error) {
	if err := a.requireLoaded("sign message"); err != nil {
		return nil, err
	}

	doc := document.Clone(value)
	if doc == nil {
		doc = map[string]any{}
	}

	if _, ok := doc[document.FieldType]; !ok {
		doc[document.FieldType] = document.TypeMessage
	}

	return a.engine.CreateDocument(doc, nil)
}

// Verify runs the full document check under the agent's policy.
func (a *Agent) Verify(doc map[string]any) document.VerificationResult {
	return a.VerifyWithSchema(doc, nil)
}

// VerifyWithSchema runs the full document check, including validation against
// a declared schema, under the agent's policy.
func (a *Agent) VerifyWithSchema(doc map[string]any, validator *schema.Validator) document.VerificationResult {
	result := a.engine.VerifyDocument(doc, validator)
	a.applyPolicy(&result)

	return result
}

// UpdateDescriptor applies changes to the agent's descriptor payload and
// issues a new self-signed version. The agent keeps its identity; its version
// moves forward and the previous version is recorded in the lineage.
func (a *Agent) UpdateDescriptor(changes map[string]any) error {
	if err := a.requireLoaded("update descriptor"); err != nil {
		return err
	}

	a.updateMu.Lock()
	defer a.updateMu.Unlock()

	a.mu.RLock()
	descriptor := document.Clone(a.descriptor)
	previousVersion := a.version
	a.mu.RUnlock()

	for key, value := range changes {
		if strings.HasPrefix(key, "jacs") && key != "jacsAgentType" && key != "jacsServices" && key != "jacsContacts" {
			return &IdentityError{Op: "update", Err: fmt.Errorf("field %s is not updatable", key)}
		}

		descriptor[key] = value
	}

	nextVersion := uuid.NewString()

	descriptor[document.FieldLastVersion] = previousVersion
	descriptor[document.FieldVersion] = nextVersion
	descriptor[document.FieldVersionDate] = a.Now().Format(document.TimeFormat)

	// The version moves before signing: the self-signature must record the
	// new agentVersion, and the engine reads it back through AgentVersion.
	// a.mu cannot stay held across Sign, which re-enters via the Identity
	// methods; updateMu keeps concurrent updates out of the window.
	a.mu.Lock()
	a.version = nextVersion
	a.mu.Unlock()

	signed, err := a.engine.Sign(descriptor)
	if err != nil {
		a.mu.Lock()
		a.version = previousVersion
		a.mu.Unlock()

		return err
	}

	a.mu.Lock()
	a.descriptor = signed
	if name, ok := changes["name"].(string); ok {
		a.name = name
	}
	a.mu.Unlock()

	return a.writeDescriptor()
}

// Dispose zeroes the agent's private key material and retires the instance.
// All subsequent signing operations fail.
func (a *Agent) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateDisposed {
		return
	}

	crypto.Zero(a.privatePEM)
	a.privatePEM = nil
	a.state = StateDisposed

	slog.Info("agent disposed", "agent", a.id)
}

// AgentID implements document.Identity.
func (a *Agent) AgentID() string {
	return a.id
}

// AgentVersion implements document.Identity.
func (a *Agent) AgentVersion() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.version
}

// Algorithm implements document.Identity.
func (a *Agent) Algorithm() crypto.Algorithm {
	return a.alg
}

// PublicKeyPEM implements document.Identity.
func (a *Agent) PublicKeyPEM() []byte {
	return a.publicPEM
}

// SignDigest implements document.Identity. Only a Loaded agent signs.
func (a *Agent) SignDigest(digest []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state != StateLoaded {
		return nil, &IdentityError{Op: "sign", Err: fmt.Errorf("agent is not loaded")}
	}

	return crypto.Sign(a.alg, a.privatePEM, digest)
}

// Now implements document.Identity. Timestamps issued by one agent are
// monotonically non-decreasing even if the wall clock steps backwards.
func (a *Agent) Now() time.Time {
	a.dateMu.Lock()
	defer a.dateMu.Unlock()

	now := time.Now().UTC()
	if now.Before(a.lastDate) {
		return a.lastDate
	}

	a.lastDate = now

	return now
}

// ResolvePublicKey implements document.KeyResolver. The agent resolves its
// own key directly and everything else through the trust store.
func (a *Agent) ResolvePublicKey(agentID, publicKeyHash string) ([]byte, error) {
	if agentID == a.id {
		return a.publicPEM, nil
	}

	if a.trustStore != nil {
		if entry, ok := a.trustStore.Get(agentID); ok {
			return entry.PublicKeyPEM, nil
		}
	}

	return nil, fmt.Errorf("no public key known for agent %s", agentID)
}

// applyPolicy layers trust checks on top of a signature-level result.
// The verified policy demands the provenance capability in the signer's
// descriptor; strict additionally demands trust-store membership. The loaded
// identity itself is exempt from the membership check.
func (a *Agent) applyPolicy(result *document.VerificationResult) {
	if a.policy == trust.PolicyOpen || result.SignerID == "" {
		return
	}

	signer := result.SignerID

	var descriptor map[string]any

	switch {
	case signer == a.id:
		descriptor = a.Descriptor()

	case a.trustStore != nil:
		if entry, ok := a.trustStore.Get(signer); ok {
			descriptor = entry.Descriptor
		}
	}

	if a.policy == trust.PolicyStrict && signer != a.id && (a.trustStore == nil || !a.trustStore.Contains(signer)) {
		result.Errors = append(result.Errors, document.VerificationError{
			Kind:   document.ErrUntrustedSigner,
			Detail: fmt.Sprintf("agent %s is not in the trust store", signer),
		})
	}

	if descriptor == nil {
		result.Errors = append(result.Errors, document.VerificationError{
			Kind:   document.ErrUntrustedSigner,
			Detail: fmt.Sprintf("no descriptor available for agent %s", signer),
		})
	} else if !trust.HasCapability(descriptor, trust.CapabilityProvenance) {
		result.Errors = append(result.Errors, document.VerificationError{
			Kind:   document.ErrUntrustedSigner,
			Detail: fmt.Sprintf("agent %s does not declare the %s capability", signer, trust.CapabilityProvenance),
		})
	}

	result.Valid = len(result.Errors) == 0
}

// requireLoaded gates signing operations on lifecycle state.
func (a *Agent) requireLoaded(op string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.state != StateLoaded {
		return &IdentityError{Op: op, Err: fmt.Errorf("agent is not loaded")}
	}

	return nil
}

// writeDescriptor persists the self-signed descriptor next to the keys,
// pretty-printed for human inspection.
func (a *Agent) writeDescriptor() error {
	a.mu.RLock()
	descriptor := a.descriptor
	a.mu.RUnlock()

	raw, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return &IdentityError{Op: "persist", Err: fmt.Errorf("failed to marshal descriptor: %w", err)}
	}

	path := filepath.Join(a.cfg.KeyDirectory, DescriptorFilename)

	if err := os.WriteFile(path, raw, 0644); err != nil {
		return &IdentityError{Op: "persist", Err: fmt.Errorf("failed to write descriptor: %w", err)}
	}

	return nil
}
