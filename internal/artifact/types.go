// Package artifact defines the typed units of shareable content the gateway
// guards and validates them before storage, publication, or execution.
package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownType  = errors.New("artifact: unknown artifact type")
	ErrInvalidInput = errors.New("artifact: invalid input")
	// ErrSignature covers signature infrastructure failures (missing
	// sidecar, unreadable content), not mere mismatches.
	ErrSignature = errors.New("artifact: signature failure")
)

// Type is the closed set of artifact kinds. Unknown kinds are rejected at
// parse time instead of leaking through string comparisons.
type Type int

const (
	TypeAgent Type = iota
	TypeWorkflow
	TypeTool
	TypeCapability
)

var typeNames = map[Type]string{
	TypeAgent:      "agent",
	TypeWorkflow:   "workflow",
	TypeTool:       "tool",
	TypeCapability: "capability",
}

// ParseType maps a type name onto the closed Type set.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Types lists every artifact type in declaration order.
func Types() []Type {
	return []Type{TypeAgent, TypeWorkflow, TypeTool, TypeCapability}
}

// Metadata is the descriptive envelope every artifact must carry.
type Metadata struct {
	Name        string   `json:"name" validate:"required"`
	Version     string   `json:"version" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Author      string   `json:"author" validate:"required"`
	Tags        []string `json:"tags,omitempty"`
	// Signature is the detached hex-encoded HMAC over the artifact's
	// canonical content bytes.
	Signature string `json:"signature,omitempty"`
}

// Result is the aggregate outcome of a validation pass. Validation failures
// are carried here as data, never thrown, so callers can report every
// problem at once. Warnings never affect Valid.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// ContentHash and Size are computed over the canonical content bytes at
	// validation time.
	ContentHash string `json:"content_hash,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
