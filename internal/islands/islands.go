// Package islands rewrites island declarations into hydration registrations and
// keeps track of which source file declares which island.
package islands

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// HydrateFunc is the runtime registration function island markers are rewritten to
const HydrateFunc = "__internal__hydrateIsland"

// DefaultRuntimeModule is the module specifier HydrateFunc is imported from
const DefaultRuntimeModule = "@islet/runtime"

// ErrNoIslands is returned when an island file declares no island
var ErrNoIslands = errors.New("island file declares no islands")

var (
	// island("Counter", up to the comma; scanBoundExpression finds the rest
	islandPattern = regexp.MustCompile(`\bisland\(\s*["'](?P<identifier>[^"']+)["']\s*,`)

	islandFilePattern = regexp.MustCompile(`\.island\.(?:tsx?|jsx?)$`)
	clientFilePattern = regexp.MustCompile(`\.client\.(?:tsx?|jsx?)$`)
)

// IslandFileFilter and ClientFileFilter are the esbuild filters matching entry files
const (
	IslandFileFilter = `\.island\.(tsx?|jsx?)$`
	ClientFileFilter = `\.client\.(tsx?|jsx?)$`
)

// IsIslandFile reports whether path follows the island entry naming convention
func IsIslandFile(path string) bool {
	return islandFilePattern.MatchString(path)
}

// IsClientFile reports whether path follows the client entry naming convention
func IsClientFile(path string) bool {
	return clientFilePattern.MatchString(path)
}

// Result is the outcome of transforming one island source file
type Result struct {
	Contents string
	Islands  []string
}

// Transformer rewrites island markers, importing the registration function from RuntimeModule
type Transformer struct {
	RuntimeModule string
}

// NewTransformer creates a transformer; an empty module falls back to DefaultRuntimeModule
func NewTransformer(runtimeModule string) *Transformer {
	if runtimeModule == "" {
		runtimeModule = DefaultRuntimeModule
	}
	return &Transformer{RuntimeModule: runtimeModule}
}

// Transform replaces each island marker in source with a call to HydrateFunc and
// prepends its import. The bound expression is copied verbatim.
func (t *Transformer) Transform(filePath, source string) (*Result, error) {
	identifierGroup := islandPattern.SubexpIndex("identifier")

	var (
		declared []string
		out      strings.Builder
	)
	seen := make(map[string]struct{})

	rest := source
	for {
		loc := islandPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}

		identifier := strings.TrimSpace(rest[loc[2*identifierGroup]:loc[2*identifierGroup+1]])
		length, ok := scanBoundExpression(rest[loc[1]:])
		symbol := ""
		if ok {
			symbol = strings.TrimSpace(rest[loc[1] : loc[1]+length])
		}
		if identifier == "" || symbol == "" {
			// not a marker; keep the text and continue after "island("
			out.WriteString(rest[:loc[0]+len("island(")])
			rest = rest[loc[0]+len("island("):]
			continue
		}

		if _, dup := seen[identifier]; !dup {
			seen[identifier] = struct{}{}
			declared = append(declared, identifier)
		}

		out.WriteString(rest[:loc[0]])
		fmt.Fprintf(&out, "%s('%s', %s)", HydrateFunc, identifier, symbol)
		rest = rest[loc[1]+length+1:]
	}

	if len(declared) == 0 && IsIslandFile(filePath) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrNoIslands)
	}

	contents := fmt.Sprintf("import { %s } from '%s';\n%s", HydrateFunc, t.RuntimeModule, out.String())

	return &Result{Contents: contents, Islands: declared}, nil
}

// scanBoundExpression returns the length of the expression up to the ")" that
// closes the marker call. Brackets nest to any depth and string literals are
// skipped. ok is false when the call is never closed or a top-level comma
// follows the expression.
func scanBoundExpression(src string) (length int, ok bool) {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch ch := src[i]; ch {
		case '"', '\'', '`':
			end := skipString(src, i)
			if end < 0 {
				return 0, false
			}
			i = end
		case '(', '[', '{':
			depth++
		case ']', '}':
			depth--
		case ')':
			if depth == 0 {
				return i, true
			}
			depth--
		case ',':
			if depth == 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// skipString returns the index of the quote closing the literal opened at start, or -1
func skipString(src string, start int) int {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return -1
}

// NormalizePath turns a source path into the key used by the Registry
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Transform rewrites source with a transformer importing from DefaultRuntimeModule
func Transform(filePath, source string) (*Result, error) {
	return NewTransformer("").Transform(filePath, source)
}
