package artifact

import (
	"encoding/json"
	"strings"
	"testing"

	"forgegate.dev/internal/scanner"
)

// canonicalBytes mirrors the validator's canonical serialization.
func canonicalBytes(t *testing.T, content map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return data
}

func validMeta() Metadata {
	return Metadata{
		Name:        "demo",
		Version:     "1.0.0",
		Description: "a demo artifact",
		Author:      "alice",
	}
}

func agentContent() map[string]any {
	return map[string]any{
		"system_prompt": "You are helpful.",
		"model":         "sonnet",
	}
}

func hasErrorContaining(res *Result, substr string) bool {
	for _, e := range res.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"agent", "workflow", "tool", "capability"} {
		typ, err := ParseType(name)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", name, err)
		}
		if typ.String() != name {
			t.Fatalf("round trip mismatch: %q -> %q", name, typ)
		}
	}
	if _, err := ParseType("plugin"); err == nil {
		t.Fatal("unknown type must be rejected")
	}
}

func TestValidAgent(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	res := v.Validate("agent", agentContent(), validMeta())
	if !res.Valid {
		t.Fatalf("expected valid, errors: %v", res.Errors)
	}
	if res.ContentHash == "" || res.Size == 0 {
		t.Fatalf("content hash and size must be computed: %+v", res)
	}
}

func TestUnknownTypeSingleError(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	res := v.Validate("plugin", agentContent(), validMeta())
	if res.Valid {
		t.Fatal("unknown type must be invalid")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("unknown type must yield a single error, got %v", res.Errors)
	}
}

func TestMissingMetadataFieldsAccumulate(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	res := v.Validate("agent", agentContent(), Metadata{Name: "demo"})
	if res.Valid {
		t.Fatal("missing metadata must be invalid")
	}
	for _, field := range []string{"version", "description", "author"} {
		if !hasErrorContaining(res, field) {
			t.Fatalf("expected an error mentioning %q, got %v", field, res.Errors)
		}
	}
}

func TestSchemaViolations(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	res := v.Validate("agent", map[string]any{"model": 42}, validMeta())
	if res.Valid {
		t.Fatal("schema violations must be invalid")
	}
	if !hasErrorContaining(res, "system_prompt") {
		t.Fatalf("expected missing-field error, got %v", res.Errors)
	}
	if !hasErrorContaining(res, `"model"`) {
		t.Fatalf("expected type error for model, got %v", res.Errors)
	}
}

func TestDisallowedPermission(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	content := agentContent()
	content["permissions"] = []any{"read", "root"}
	res := v.Validate("agent", content, validMeta())
	if res.Valid {
		t.Fatal("disallowed permission must be invalid")
	}
	if !hasErrorContaining(res, `"root"`) {
		t.Fatalf("expected error naming the permission, got %v", res.Errors)
	}
}

func TestSignatureRequired(t *testing.T) {
	signer, err := NewSigner("signing-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	v := NewValidator(ValidatorConfig{RequireSignature: true, Signer: signer})

	content := agentContent()
	meta := validMeta()
	res := v.Validate("agent", content, meta)
	if res.Valid || !hasErrorContaining(res, "signature") {
		t.Fatalf("unsigned artifact must fail signature check: %v", res.Errors)
	}

	canonical := canonicalBytes(t, content)
	meta.Signature = signer.Sign(canonical)
	res = v.Validate("agent", content, meta)
	if !res.Valid {
		t.Fatalf("signed artifact must validate, errors: %v", res.Errors)
	}

	meta.Signature = strings.Repeat("00", 32)
	res = v.Validate("agent", content, meta)
	if res.Valid {
		t.Fatal("wrong signature must fail")
	}
}

func TestExecutableContentIsScanned(t *testing.T) {
	v := NewValidator(ValidatorConfig{Scanner: scanner.New(scanner.DefaultConfig())})
	content := map[string]any{
		"code":       "package artifact\n\nimport \"os/exec\"\n\nfunc Run() { _ = exec.Command(\"sh\") }\n",
		"entrypoint": "Run",
	}
	res := v.Validate("tool", content, validMeta())
	if res.Valid {
		t.Fatal("banned code must invalidate the artifact")
	}
	if !hasErrorContaining(res, "exec.Command") {
		t.Fatalf("scanner errors must be merged, got %v", res.Errors)
	}
}

func TestWarningsDoNotAffectValidity(t *testing.T) {
	v := NewValidator(ValidatorConfig{Scanner: scanner.New(scanner.Config{ComplexityThreshold: 1})})
	content := map[string]any{
		"code":       "package artifact\n\nfunc F(x int) int {\n\tif x > 0 {\n\t\treturn x\n\t}\n\treturn -x\n}\n",
		"entrypoint": "F",
	}
	res := v.Validate("tool", content, validMeta())
	if !res.Valid {
		t.Fatalf("warnings must not invalidate, errors: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a complexity warning")
	}
}
