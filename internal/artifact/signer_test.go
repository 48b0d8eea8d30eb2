package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSignVerify(t *testing.T) {
	s, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	data := []byte(`{"model":"sonnet"}`)
	sig := s.Sign(data)
	if err := s.Verify(data, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := s.Verify([]byte("tampered"), sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if err := s.Verify(data, ""); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("empty signature must fail, got %v", err)
	}
	if err := s.Verify(data, "zz"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("non-hex signature must fail, got %v", err)
	}

	other, err := NewSigner("different secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if err := other.Verify(data, sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("signature under another key must fail, got %v", err)
	}
}

func TestSignatureSidecarRoundTrip(t *testing.T) {
	s, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")
	if err := os.WriteFile(path, []byte(`{"model":"sonnet"}`), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if err := s.SignFile(path); err != nil {
		t.Fatalf("SignFile: %v", err)
	}
	if _, err := os.Stat(SignatureSidecar(path)); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if err := s.VerifyFile(path); err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"model":"opus"}`), 0o644); err != nil {
		t.Fatalf("rewrite artifact: %v", err)
	}
	if err := s.VerifyFile(path); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("modified content must fail verification, got %v", err)
	}

	if err := s.VerifyFile(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrSignature) {
		t.Fatalf("missing file must be a signature infrastructure error, got %v", err)
	}
}
