// Package assets models the outputs of one build pass and reduces their
// identifier requirements over the chunk import graph.
package assets

import (
	"errors"
	"sort"
	"strings"

	"github.com/fluxbase-eu/islet/internal/extract"
)

// AssetType classifies a build output. The client and island values double as
// the esbuild namespaces their entry points are resolved into.
type AssetType string

const (
	ClientScript AssetType = "client-script"
	IslandScript AssetType = "island-script"
	ChunkScript  AssetType = "chunk-script"
	Other        AssetType = "other"
)

// Namespace returns the esbuild namespace for entry asset types
func (t AssetType) Namespace() string {
	return string(t)
}

// ErrUnclassifiable is returned when an output cannot be mapped back to a source
var ErrUnclassifiable = errors.New("output cannot be mapped to an original source path")

// Import is one direct import edge of a built asset
type Import struct {
	Path     string `json:"path"`
	External bool   `json:"external"`
}

// BuiltAsset is one output file of a build pass together with what it needs at runtime
type BuiltAsset struct {
	Key          string               `json:"key"`
	Type         AssetType            `json:"type"`
	Name         string               `json:"name"`
	PublicPath   string               `json:"publicPath"`
	Islands      []string             `json:"islands"`
	Imports      []Import             `json:"imports"`
	Requirements extract.Requirements `json:"requirements"`
}

// BuiltAssets maps asset keys to assets for one build pass
type BuiltAssets map[string]*BuiltAsset

// Keys returns the asset keys in sorted order
func (a BuiltAssets) Keys() []string {
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// OutputMeta is what Classify recovers about an output
type OutputMeta struct {
	Type         AssetType
	OriginalPath string
}

// Classify derives the asset type and the pre-bundling source path of an output
// from its metafile record.
func Classify(output MetafileOutput) (OutputMeta, error) {
	if output.EntryPoint != "" {
		for _, t := range []AssetType{ClientScript, IslandScript} {
			prefix := t.Namespace() + ":"
			if strings.HasPrefix(output.EntryPoint, prefix) {
				return OutputMeta{Type: t, OriginalPath: strings.TrimPrefix(output.EntryPoint, prefix)}, nil
			}
		}
		return OutputMeta{Type: Other, OriginalPath: output.EntryPoint}, nil
	}

	if len(output.Inputs) == 0 {
		return OutputMeta{}, ErrUnclassifiable
	}

	inputs := make([]string, 0, len(output.Inputs))
	for input := range output.Inputs {
		inputs = append(inputs, input)
	}
	sort.Strings(inputs)

	return OutputMeta{Type: ChunkScript, OriginalPath: stripNamespace(inputs[0])}, nil
}

func stripNamespace(path string) string {
	for _, t := range []AssetType{ClientScript, IslandScript} {
		path = strings.TrimPrefix(path, t.Namespace()+":")
	}
	return path
}
