package assets

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BuildManifestSchema is the schema version written into every build manifest
const BuildManifestSchema = "1.0.0"

// BuildManifest is the persisted result of one build pass
type BuildManifest struct {
	Schema    string    `json:"schema" yaml:"schema"`
	BuildID   string    `json:"buildId" yaml:"buildId"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Entries   []Entry   `json:"entries" yaml:"entries"`
}

// NewBuildManifest wraps entries with a fresh build id
func NewBuildManifest(entries []Entry) *BuildManifest {
	if entries == nil {
		entries = []Entry{}
	}
	return &BuildManifest{
		Schema:    BuildManifestSchema,
		BuildID:   uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}
}

// Lookup finds the entry for an asset key
func (m *BuildManifest) Lookup(key string) (Entry, bool) {
	for _, entry := range m.Entries {
		if entry.Key == key {
			return entry, true
		}
	}
	return Entry{}, false
}

// IslandEntry finds the island script declaring the given island identifier
func (m *BuildManifest) IslandEntry(identifier string) (Entry, bool) {
	for _, entry := range m.Entries {
		if entry.Type != IslandScript {
			continue
		}
		for _, island := range entry.Islands {
			if island == identifier {
				return entry, true
			}
		}
	}
	return Entry{}, false
}

// ForIslands returns the island scripts declaring any of the identifiers, in manifest order
func (m *BuildManifest) ForIslands(identifiers []string) []Entry {
	wanted := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		wanted[id] = struct{}{}
	}

	var entries []Entry
	for _, entry := range m.Entries {
		if entry.Type != IslandScript {
			continue
		}
		for _, island := range entry.Islands {
			if _, ok := wanted[island]; ok {
				entries = append(entries, entry)
				break
			}
		}
	}
	return entries
}

// ClientScripts returns the client entries
func (m *BuildManifest) ClientScripts() []Entry {
	var entries []Entry
	for _, entry := range m.Entries {
		if entry.Type == ClientScript {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Islands returns every declared island identifier, sorted
func (m *BuildManifest) Islands() []string {
	var islands []string
	for _, entry := range m.Entries {
		if entry.Type == IslandScript {
			islands = append(islands, entry.Islands...)
		}
	}
	sort.Strings(islands)
	return islands
}

// Marshal encodes the manifest as indented JSON
func (m *BuildManifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode build manifest: %w", err)
	}
	return data, nil
}

// ParseBuildManifest decodes a persisted build manifest
func ParseBuildManifest(data []byte) (*BuildManifest, error) {
	var m BuildManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode build manifest: %w", err)
	}
	if m.Schema == "" {
		return nil, fmt.Errorf("build manifest has no schema version")
	}
	return &m, nil
}
