package islands

import (
	"sort"
	"sync"
)

// Registry maps source files to the island identifiers they declare during one
// build pass. esbuild runs load callbacks concurrently, so access is guarded.
type Registry struct {
	mu     sync.RWMutex
	byFile map[string][]string
}

// Conflict describes an island identifier declared by more than one file
type Conflict struct {
	Identifier string
	Files      []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byFile: make(map[string][]string)}
}

// Set records the islands declared by path, replacing any previous record
func (r *Registry) Set(path string, identifiers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byFile[NormalizePath(path)] = append([]string(nil), identifiers...)
}

// Lookup returns the islands declared by path
func (r *Registry) Lookup(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identifiers, ok := r.byFile[NormalizePath(path)]
	if !ok {
		return nil
	}
	return append([]string(nil), identifiers...)
}

// Len returns the number of files with recorded islands
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byFile)
}

// Reset forgets everything; called at the start of every build pass
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byFile = make(map[string][]string)
}

// Conflicts lists identifiers declared in more than one file, sorted by identifier
func (r *Registry) Conflicts() []Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make(map[string][]string)
	for file, identifiers := range r.byFile {
		for _, identifier := range identifiers {
			files[identifier] = append(files[identifier], file)
		}
	}

	var conflicts []Conflict
	for identifier, declaredIn := range files {
		if len(declaredIn) < 2 {
			continue
		}
		sort.Strings(declaredIn)
		conflicts = append(conflicts, Conflict{Identifier: identifier, Files: declaredIn})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Identifier < conflicts[j].Identifier
	})

	return conflicts
}
