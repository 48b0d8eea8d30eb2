// Package protect encrypts, decrypts, and masks data under named protection
// policies. Key material is resolved through a narrow resolver interface and
// is never logged or returned to callers.
package protect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("protect: policy not found")
	ErrConflict     = errors.New("protect: policy already exists")
	ErrInvalidInput = errors.New("protect: invalid input")
	// ErrDecryption covers authentication failures and unresolvable keys.
	ErrDecryption = errors.New("protect: decryption failed")
)

// Kind selects how a policy protects its field.
type Kind string

const (
	KindEncryption Kind = "encryption"
	KindMasking    Kind = "masking"
)

// Policy names a protection rule for one field.
type Policy struct {
	Name           string   `json:"name"`
	Field          string   `json:"field"`
	Kind           Kind     `json:"kind"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
	// KeyRef is an opaque reference resolved to raw key bytes; the raw key
	// never appears in the policy itself.
	KeyRef string `json:"key_ref,omitempty"`
}

// KeyResolver turns a policy's key reference into raw key bytes.
type KeyResolver interface {
	Resolve(ref string) ([]byte, error)
}

// StaticKeys resolves references from an in-memory map of key material.
type StaticKeys map[string]string

func (k StaticKeys) Resolve(ref string) ([]byte, error) {
	material, ok := k[ref]
	if !ok || material == "" {
		return nil, fmt.Errorf("%w: unknown key reference", ErrDecryption)
	}
	return deriveKey(material), nil
}

// EnvKeys resolves references from environment variables, optionally under a
// prefix (ref "master" with prefix "FORGEGATE_KEY_" reads FORGEGATE_KEY_MASTER).
type EnvKeys struct {
	Prefix string
}

func (k EnvKeys) Resolve(ref string) ([]byte, error) {
	name := k.Prefix + strings.ToUpper(ref)
	material := strings.TrimSpace(os.Getenv(name))
	if material == "" {
		return nil, fmt.Errorf("%w: key %s is not configured", ErrDecryption, name)
	}
	return deriveKey(material), nil
}

// deriveKey stretches arbitrary key material into a 32-byte AES-256 key.
func deriveKey(material string) []byte {
	sum := sha256.Sum256([]byte(material))
	return sum[:]
}

// Service holds the protection policy collection and applies policies to
// data. Safe for concurrent use.
type Service struct {
	mu       sync.RWMutex
	policies map[string]Policy
	keys     KeyResolver
}

// NewService constructs a Service backed by the given key resolver.
func NewService(keys KeyResolver) (*Service, error) {
	if keys == nil {
		return nil, errors.New("protect: key resolver is required")
	}
	return &Service{policies: make(map[string]Policy), keys: keys}, nil
}

// CreatePolicy registers a new policy. Duplicate names are rejected.
func (s *Service) CreatePolicy(p Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrConflict, p.Name)
	}
	s.policies[p.Name] = p
	return nil
}

// GetPolicy returns the named policy.
func (s *Service) GetPolicy(name string) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// UpdatePolicy replaces an existing policy; unknown names are rejected.
func (s *Service) UpdatePolicy(p Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p.Name)
	}
	s.policies[p.Name] = p
	return nil
}

// DeletePolicy removes the named policy; unknown names are rejected.
func (s *Service) DeletePolicy(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.policies, name)
	return nil
}

// ListPolicies returns all policies in unspecified order.
func (s *Service) ListPolicies() []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out
}

// Encrypt serializes data to canonical JSON and seals it with AES-256-GCM
// under the named policy's key. The returned blob is nonce||ciphertext.
func (s *Service) Encrypt(data any, policyName string) ([]byte, error) {
	p, err := s.GetPolicy(policyName)
	if err != nil {
		return nil, err
	}
	if p.Kind != KindEncryption {
		return nil, fmt.Errorf("%w: policy %s is not an encryption policy", ErrInvalidInput, policyName)
	}
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize: %v", ErrInvalidInput, err)
	}
	gcm, err := s.aead(p.KeyRef)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Authentication failures and key resolution
// failures surface as ErrDecryption.
func (s *Service) Decrypt(blob []byte, policyName string) (any, error) {
	p, err := s.GetPolicy(policyName)
	if err != nil {
		return nil, err
	}
	if p.Kind != KindEncryption {
		return nil, fmt.Errorf("%w: policy %s is not an encryption policy", ErrInvalidInput, policyName)
	}
	gcm, err := s.aead(p.KeyRef)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	var out any
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed plaintext", ErrDecryption)
	}
	return out, nil
}

// Mask replaces all but the last four characters of value.
func Mask(value string) string {
	const visible = 4
	runes := []rune(value)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}

func (s *Service) aead(keyRef string) (cipher.AEAD, error) {
	key, err := s.keys.Resolve(keyRef)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return cipher.NewGCM(block)
}

func validatePolicy(p Policy) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	switch p.Kind {
	case KindEncryption:
		if strings.TrimSpace(p.KeyRef) == "" {
			return fmt.Errorf("%w: encryption policy requires a key reference", ErrInvalidInput)
		}
	case KindMasking:
	default:
		return fmt.Errorf("%w: unsupported protection kind %q", ErrInvalidInput, p.Kind)
	}
	return nil
}
