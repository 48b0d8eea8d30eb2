package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"forgegate.dev/internal/scanner"
)

// DefaultAllowedPermissions is the allow-list for permissions an artifact may
// request.
func DefaultAllowedPermissions() []string {
	return []string{"read", "write", "execute"}
}

// CodeScanner is the static-analysis collaborator invoked when content
// carries executable source.
type CodeScanner interface {
	Scan(source string) *scanner.Result
}

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Schemas overrides the compiled-in schema set.
	Schemas map[Type]Schema
	// AllowedPermissions is the allow-list checked against requested
	// permissions.
	AllowedPermissions []string
	// RequireSignature makes an unsigned or mismatched artifact invalid.
	RequireSignature bool
	// Signer verifies signatures; required when RequireSignature is set.
	Signer *Signer
	// Scanner handles executable content; nil disables scanning.
	Scanner CodeScanner
}

// Validator checks artifact content against its type schema, verifies
// metadata, requested permissions, and signatures, and delegates executable
// source to the code scanner. All violations are accumulated; only a missing
// schema short-circuits.
type Validator struct {
	schemas    map[Type]Schema
	allowed    map[string]struct{}
	requireSig bool
	signer     *Signer
	scanner    CodeScanner
	checks     *validator.Validate
}

// NewValidator constructs a Validator, falling back to defaults for zero
// config values.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.Schemas == nil {
		cfg.Schemas = DefaultSchemas()
	}
	if cfg.AllowedPermissions == nil {
		cfg.AllowedPermissions = DefaultAllowedPermissions()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedPermissions))
	for _, p := range cfg.AllowedPermissions {
		allowed[strings.ToLower(p)] = struct{}{}
	}
	return &Validator{
		schemas:    cfg.Schemas,
		allowed:    allowed,
		requireSig: cfg.RequireSignature,
		signer:     cfg.Signer,
		scanner:    cfg.Scanner,
		checks:     validator.New(),
	}
}

// Validate runs the full validation pipeline for one artifact. The result is
// produced fresh per call and never mutated after return.
func (v *Validator) Validate(typeName string, content map[string]any, meta Metadata) *Result {
	res := &Result{}

	typ, err := ParseType(typeName)
	if err != nil {
		res.addError("unknown artifact type %q", typeName)
		return res
	}
	schema, err := schemaFor(v.schemas, typ)
	if err != nil {
		res.addError("no schema registered for artifact type %q", typ)
		return res
	}

	canonical, err := json.Marshal(content)
	if err != nil {
		res.addError("content is not serializable: %v", err)
		return res
	}
	sum := sha256.Sum256(canonical)
	res.ContentHash = hex.EncodeToString(sum[:])
	res.Size = int64(len(canonical))

	checkSchema(res, typ, content, schema)
	v.checkMetadata(res, meta)
	v.checkPermissions(res, content)
	v.checkSignature(res, canonical, meta)
	v.scanCode(res, content)

	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) checkMetadata(res *Result, meta Metadata) {
	err := v.checks.Struct(meta)
	if err == nil {
		return
	}
	invalid, ok := err.(validator.ValidationErrors)
	if !ok {
		res.addError("metadata validation failed: %v", err)
		return
	}
	for _, fe := range invalid {
		res.addError("metadata field %q is %s", strings.ToLower(fe.Field()), fe.Tag())
	}
}

func (v *Validator) checkPermissions(res *Result, content map[string]any) {
	raw, ok := content["permissions"]
	if !ok {
		return
	}
	for _, p := range toStrings(raw) {
		if _, ok := v.allowed[strings.ToLower(p)]; !ok {
			res.addError("requested permission %q is not allowed", p)
		}
	}
}

func (v *Validator) checkSignature(res *Result, canonical []byte, meta Metadata) {
	if !v.requireSig {
		return
	}
	if v.signer == nil {
		res.addError("signature required but no signer is configured")
		return
	}
	if meta.Signature == "" {
		res.addError("artifact signature is required")
		return
	}
	if err := v.signer.Verify(canonical, meta.Signature); err != nil {
		res.addError("artifact signature verification failed")
	}
}

func (v *Validator) scanCode(res *Result, content map[string]any) {
	if v.scanner == nil {
		return
	}
	source := executableSource(content)
	if source == "" {
		return
	}
	scanRes := v.scanner.Scan(source)
	res.Errors = append(res.Errors, scanRes.Errors...)
	res.Warnings = append(res.Warnings, scanRes.Warnings...)
}

// executableSource extracts executable logic from content, if any.
func executableSource(content map[string]any) string {
	for _, key := range []string{"code", "source"} {
		if s, ok := content[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func toStrings(raw any) []string {
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
