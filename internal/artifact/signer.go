package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrBadSignature indicates the signature did not match the content.
var ErrBadSignature = errors.New("artifact: signature mismatch")

// Signer produces and verifies detached HMAC-SHA256 signatures over exact
// artifact bytes. Signatures are hex encoded; verification recomputes the
// HMAC and compares in constant time.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer keyed by the configured secret.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("artifact: signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex-encoded HMAC over data.
func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex-encoded detached signature against data.
func (s *Signer) Verify(data []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: signature is empty", ErrBadSignature)
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrBadSignature)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrBadSignature
	}
	return nil
}

// SignatureSidecar is the path convention for a detached signature file.
func SignatureSidecar(path string) string {
	return path + ".sig"
}

// SignFile writes the detached signature for the file at path next to it.
func (s *Signer) SignFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrSignature, path, err)
	}
	sig := s.Sign(data)
	if err := os.WriteFile(SignatureSidecar(path), []byte(sig), 0o644); err != nil {
		return fmt.Errorf("%w: write sidecar: %v", ErrSignature, err)
	}
	return nil
}

// VerifyFile checks the file at path against its signature sidecar.
func (s *Signer) VerifyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrSignature, path, err)
	}
	sig, err := os.ReadFile(SignatureSidecar(path))
	if err != nil {
		return fmt.Errorf("%w: read sidecar: %v", ErrSignature, err)
	}
	return s.Verify(data, string(sig))
}
