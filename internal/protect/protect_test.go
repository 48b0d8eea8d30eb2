package protect

import (
	"errors"
	"reflect"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(StaticKeys{
		"master": "correct horse battery staple",
		"backup": "a completely different secret",
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.CreatePolicy(Policy{Name: "pii", Field: "email", Kind: KindEncryption, KeyRef: "master"}); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if err := svc.CreatePolicy(Policy{Name: "pii-backup", Field: "email", Kind: KindEncryption, KeyRef: "backup"}); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	return svc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService(t)
	original := map[string]any{"email": "alice@example.com", "n": float64(7)}

	blob, err := svc.Encrypt(original, "pii")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := svc.Decrypt(blob, "pii")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"email": "alice@example.com", "n": float64(7)}) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestDecryptWrongPolicyFails(t *testing.T) {
	svc := newTestService(t)
	blob, err := svc.Encrypt("secret", "pii")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := svc.Decrypt(blob, "pii-backup"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption for cross-policy decrypt, got %v", err)
	}
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	svc := newTestService(t)
	blob, err := svc.Encrypt("secret", "pii")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := svc.Decrypt(blob, "pii"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption for tampered blob, got %v", err)
	}
}

func TestUnknownPolicy(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Encrypt("x", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Decrypt([]byte{1, 2, 3}, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnresolvableKey(t *testing.T) {
	svc := newTestService(t)
	if err := svc.CreatePolicy(Policy{Name: "orphan", Field: "x", Kind: KindEncryption, KeyRef: "nope"}); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if _, err := svc.Encrypt("x", "orphan"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption for missing key, got %v", err)
	}
}

func TestPolicyCRUD(t *testing.T) {
	svc := newTestService(t)

	if err := svc.CreatePolicy(Policy{Name: "pii", Kind: KindMasking}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create must conflict, got %v", err)
	}
	if err := svc.UpdatePolicy(Policy{Name: "ghost", Kind: KindMasking}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of unknown policy must fail, got %v", err)
	}
	if err := svc.DeletePolicy("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete of unknown policy must fail, got %v", err)
	}
	if err := svc.DeletePolicy("pii-backup"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetPolicy("pii-backup"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted policy must be gone, got %v", err)
	}
	if err := svc.CreatePolicy(Policy{Name: "bad", Kind: "shred"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unsupported kind must be rejected, got %v", err)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": "************1111",
		"abc":              "***",
		"":                 "",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q)=%q, want %q", in, got, want)
		}
	}
}
