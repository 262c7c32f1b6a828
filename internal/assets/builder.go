package assets

import (
	"sort"

	"github.com/fluxbase-eu/islet/internal/extract"
)

// Entry is a built asset stripped of its imports, carrying the union of its own
// requirements and those of every chunk it reaches through internal imports.
type Entry struct {
	Key          string               `json:"key" yaml:"key"`
	Type         AssetType            `json:"type" yaml:"type"`
	Name         string               `json:"name" yaml:"name"`
	PublicPath   string               `json:"publicPath" yaml:"publicPath"`
	Islands      []string             `json:"islands" yaml:"islands"`
	Requirements extract.Requirements `json:"requirements" yaml:"requirements"`
}

// ManifestBuilder reduces a pass's built assets into manifest entries
type ManifestBuilder struct {
	assets BuiltAssets
}

// NewManifestBuilder creates a builder over one pass's assets
func NewManifestBuilder(assets BuiltAssets) *ManifestBuilder {
	return &ManifestBuilder{assets: assets}
}

// Build emits one entry per non-chunk asset, ordered by key. Chunks only
// contribute to the roots that reach them.
func (b *ManifestBuilder) Build() []Entry {
	entries := make([]Entry, 0, len(b.assets))

	for _, key := range b.assets.Keys() {
		asset := b.assets[key]
		if asset == nil || asset.Type == ChunkScript {
			continue
		}

		entries = append(entries, Entry{
			Key:          asset.Key,
			Type:         asset.Type,
			Name:         asset.Name,
			PublicPath:   asset.PublicPath,
			Islands:      copyStrings(asset.Islands),
			Requirements: b.Reduce(key),
		})
	}

	return entries
}

// Reduce returns the transitive requirements of the asset with the given key.
// Each chunk is visited at most once, so import cycles terminate.
func (b *ManifestBuilder) Reduce(key string) extract.Requirements {
	routes := make(map[string]struct{})
	messages := make(map[string]struct{})
	flashMessages := make(map[string]struct{})

	visited := make(map[string]struct{})
	var walk func(asset *BuiltAsset)
	walk = func(asset *BuiltAsset) {
		addAll(routes, asset.Requirements.Routes)
		addAll(messages, asset.Requirements.Messages)
		addAll(flashMessages, asset.Requirements.FlashMessages)

		for _, imp := range asset.Imports {
			if imp.External {
				continue
			}
			dep, ok := b.assets[imp.Path]
			if !ok || dep == nil || dep.Type != ChunkScript {
				continue
			}
			if _, seen := visited[imp.Path]; seen {
				continue
			}
			visited[imp.Path] = struct{}{}
			walk(dep)
		}
	}

	if root, ok := b.assets[key]; ok && root != nil {
		visited[key] = struct{}{}
		walk(root)
	}

	return extract.Requirements{
		Routes:        sortedSet(routes),
		Messages:      sortedSet(messages),
		FlashMessages: sortedSet(flashMessages),
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		set[v] = struct{}{}
	}
}

func sortedSet(set map[string]struct{}) []string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func copyStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}
