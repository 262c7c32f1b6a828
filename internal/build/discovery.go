package build

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fluxbase-eu/islet/internal/islands"
)

var (
	// Counter.tsx, UserMenu.jsx; Counter.island.tsx has a secondary extension
	componentFilePattern = regexp.MustCompile(`^[A-Z]\w*\.(?:tsx?|jsx?)$`)

	defaultExportPattern = regexp.MustCompile(`\bexport\s+default\b|\bexport\s*\{[^}]*\bas\s+default\b`)
)

// componentLoadFilter is the esbuild filter matching component files on disk
const componentLoadFilter = `(?:^|[\\/])[A-Z]\w*\.(?:tsx?|jsx?)$`

// Component is a component source file found by DiscoverComponents
type Component struct {
	Name             string `json:"name" yaml:"name"`
	Path             string `json:"path" yaml:"path"`
	HasDefaultExport bool   `json:"hasDefaultExport" yaml:"hasDefaultExport"`
}

// IsComponentFile reports whether path names a component: an uppercase base
// name with a single script extension.
func IsComponentFile(path string) bool {
	return componentFilePattern.MatchString(filepath.Base(path))
}

// HasDefaultExport reports whether source declares a default export
func HasDefaultExport(source string) bool {
	return defaultExportPattern.MatchString(source)
}

// DiscoverComponents walks dir and returns every component file, sorted by path
func DiscoverComponents(dir string) ([]Component, error) {
	var components []Component

	err := walkSources(dir, func(path string) error {
		if !IsComponentFile(path) {
			return nil
		}

		source, err := os.ReadFile(path) //nolint:gosec // path comes from walking the source dir
		if err != nil {
			return fmt.Errorf("failed to read component %s: %w", path, err)
		}

		base := filepath.Base(path)
		components = append(components, Component{
			Name:             strings.TrimSuffix(base, filepath.Ext(base)),
			Path:             path,
			HasDefaultExport: HasDefaultExport(string(source)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Path < components[j].Path
	})

	return components, nil
}

// DiscoverEntries walks dir and returns the absolute paths of all client and
// island entry files, sorted.
func DiscoverEntries(dir string) ([]string, error) {
	var entries []string

	err := walkSources(dir, func(path string) error {
		if islands.IsClientFile(path) || islands.IsIslandFile(path) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(entries)
	return entries, nil
}

// walkSources visits regular files under dir, skipping node_modules and hidden directories
func walkSources(dir string, visit func(path string) error) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve source dir: %w", err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return visit(path)
	})
}
