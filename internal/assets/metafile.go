package assets

import (
	"encoding/json"
	"fmt"
)

// Metafile is the subset of the esbuild metafile the asset classifier reads.
// Keys of Outputs and the paths of internal imports are relative to the build
// working directory.
type Metafile struct {
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileOutput describes one emitted file
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []importRecord          `json:"imports"`
}

// InputContrib is how much of an input file ended up in an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

type importRecord struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// ParseMetafile decodes the metafile string returned by esbuild
func ParseMetafile(raw string) (*Metafile, error) {
	meta := &Metafile{}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	if meta.Outputs == nil {
		meta.Outputs = map[string]MetafileOutput{}
	}
	return meta, nil
}

// AssetImports converts the output's import records into asset import edges.
// Dynamic imports are edges too; esbuild reports them with kind "dynamic-import".
func (o MetafileOutput) AssetImports() []Import {
	edges := make([]Import, 0, len(o.Imports))
	for _, record := range o.Imports {
		if record.Path != "" {
			edges = append(edges, Import{Path: record.Path, External: record.External})
		}
	}
	return edges
}
