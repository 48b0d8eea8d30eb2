// Package scanner performs static analysis of untrusted artifact source
// before it is accepted for publication or execution. It parses the source
// into an AST and flags banned calls, banned imports, and excessive
// per-function complexity in a single walk.
package scanner

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// DefaultComplexityThreshold is the per-function cyclomatic complexity above
// which a warning is produced.
const DefaultComplexityThreshold = 10

// DefaultBannedCalls lists call targets rejected in artifact source:
// process spawning, dynamic loading, runtime introspection, and raw
// interactive input.
func DefaultBannedCalls() []string {
	return []string{
		"exec.Command",
		"exec.CommandContext",
		"os.StartProcess",
		"syscall.Exec",
		"syscall.ForkExec",
		"plugin.Open",
		"reflect.ValueOf",
		"reflect.TypeOf",
		"fmt.Scan",
		"fmt.Scanf",
		"fmt.Scanln",
	}
}

// DefaultBannedImports lists import paths rejected in artifact source:
// process/OS access, low-level memory, dynamic loading, and the network.
func DefaultBannedImports() []string {
	return []string{
		"os",
		"os/exec",
		"syscall",
		"plugin",
		"unsafe",
		"net",
		"net/http",
	}
}

// Config controls what the scanner rejects.
type Config struct {
	BannedCalls         []string
	BannedImports       []string
	ComplexityThreshold int
}

// DefaultConfig returns the stock scanning policy.
func DefaultConfig() Config {
	return Config{
		BannedCalls:         DefaultBannedCalls(),
		BannedImports:       DefaultBannedImports(),
		ComplexityThreshold: DefaultComplexityThreshold,
	}
}

// Result aggregates everything a scan found. Warnings never affect Valid.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Scanner flags disallowed operations in candidate source.
type Scanner struct {
	bannedCalls   map[string]struct{}
	bannedImports map[string]struct{}
	threshold     int
}

// New constructs a Scanner from cfg, falling back to defaults for zero
// values.
func New(cfg Config) *Scanner {
	if cfg.BannedCalls == nil {
		cfg.BannedCalls = DefaultBannedCalls()
	}
	if cfg.BannedImports == nil {
		cfg.BannedImports = DefaultBannedImports()
	}
	if cfg.ComplexityThreshold <= 0 {
		cfg.ComplexityThreshold = DefaultComplexityThreshold
	}
	s := &Scanner{
		bannedCalls:   make(map[string]struct{}, len(cfg.BannedCalls)),
		bannedImports: make(map[string]struct{}, len(cfg.BannedImports)),
		threshold:     cfg.ComplexityThreshold,
	}
	for _, c := range cfg.BannedCalls {
		s.bannedCalls[c] = struct{}{}
	}
	for _, imp := range cfg.BannedImports {
		s.bannedImports[imp] = struct{}{}
	}
	return s
}

// Scan parses source and collects violations. Malformed input fails fast
// with a single syntax error.
func (s *Scanner) Scan(source string) *Result {
	res := &Result{}
	file, fset, err := parseSource(source)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("syntax error: %v", err))
		return res
	}

	for _, imp := range file.Imports {
		path, perr := strconv.Unquote(imp.Path.Value)
		if perr != nil {
			continue
		}
		if _, banned := s.bannedImports[path]; banned {
			pos := fset.Position(imp.Pos())
			res.Errors = append(res.Errors,
				fmt.Sprintf("banned import %q at line %d", path, pos.Line))
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		name := callName(call)
		if name == "" {
			return true
		}
		if _, banned := s.bannedCalls[name]; banned {
			pos := fset.Position(call.Pos())
			res.Errors = append(res.Errors,
				fmt.Sprintf("banned function call %q at line %d", name, pos.Line))
		}
		return true
	})

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		c := complexity(fn.Body)
		if c > s.threshold {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("function %q has cyclomatic complexity %d (threshold %d)",
					fn.Name.Name, c, s.threshold))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// parseSource accepts both complete files and bare snippets; snippets are
// wrapped in a synthetic package clause before a single retry.
func parseSource(source string) (*ast.File, *token.FileSet, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", source, 0)
	if err == nil {
		return file, fset, nil
	}
	if strings.HasPrefix(strings.TrimSpace(source), "package ") {
		return nil, nil, err
	}
	wrapped := "package artifact\n\n" + source
	fset = token.NewFileSet()
	file, werr := parser.ParseFile(fset, "artifact.go", wrapped, 0)
	if werr != nil {
		return nil, nil, err
	}
	return file, fset, nil
}

// callName renders a call target as "ident" or "pkg.Sel". Calls through
// arbitrary expressions (method values, chained selectors) are not matched
// against the banned set.
func callName(call *ast.CallExpr) string {
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		return fn.Name
	case *ast.SelectorExpr:
		if x, ok := fn.X.(*ast.Ident); ok {
			return x.Name + "." + fn.Sel.Name
		}
	}
	return ""
}

// complexity computes cyclomatic complexity: one plus a point per branch,
// loop, non-default case, comm clause, and short-circuit operator.
func complexity(body *ast.BlockStmt) int {
	c := 1
	ast.Inspect(body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if node.List != nil {
				c++
			}
		case *ast.CommClause:
			c++
		case *ast.BinaryExpr:
			if node.Op == token.LAND || node.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}
