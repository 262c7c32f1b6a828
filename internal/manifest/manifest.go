// Package manifest builds the per-response runtime manifest the server embeds in
// every page and the client decodes once to hydrate islands.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/fluxbase-eu/islet/internal/assets"
)

// Schema is the wire format version written by Encode
const Schema = "1.0.0"

// SupportedSchema is the version constraint Decode accepts
const SupportedSchema = "^1.0.0"

var (
	// ErrSchemaMismatch is returned when a manifest was written by an incompatible version
	ErrSchemaMismatch = errors.New("unsupported manifest schema")

	schemaConstraint, _ = semver.NewConstraint(SupportedSchema)
)

// Route describes the route that rendered the current response
type Route struct {
	Identifier string            `json:"identifier"`
	Pattern    string            `json:"pattern"`
	Params     map[string]string `json:"params,omitempty"`
}

// Asset is a script the browser may need to load
type Asset struct {
	Type    assets.AssetType `json:"type"`
	Name    string           `json:"name"`
	Path    string           `json:"path"`
	Islands []string         `json:"islands,omitempty"`
}

// Manifest is the wire format shipped with each response
type Manifest struct {
	Schema        string                     `json:"schema"`
	BuildID       string                     `json:"buildId,omitempty"`
	Route         *Route                     `json:"route"`
	Routes        map[string]string          `json:"routes"`
	Messages      map[string]string          `json:"messages"`
	FlashMessages map[string]any             `json:"flashMessages"`
	Props         map[string]json.RawMessage `json:"props"`
	Assets        []Asset                    `json:"assets"`
	Globals       map[string]any             `json:"globals"`
}

// PropsFor returns the serialized props registered under hash. Unknown or empty
// hashes yield an empty object.
func (m *Manifest) PropsFor(hash string) json.RawMessage {
	if hash != "" {
		if props, ok := m.Props[hash]; ok {
			return props
		}
	}
	return json.RawMessage("{}")
}

// AssetFor returns the island script declaring component
func (m *Manifest) AssetFor(component string) (Asset, bool) {
	for _, asset := range m.Assets {
		for _, island := range asset.Islands {
			if island == component {
				return asset, true
			}
		}
	}
	return Asset{}, false
}

// Encode serializes m as JSON that is safe to embed in an HTML script element
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a manifest and checks its schema version
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if m.Schema == "" {
		return nil, fmt.Errorf("%w: missing schema version", ErrSchemaMismatch)
	}
	version, err := semver.NewVersion(m.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, m.Schema)
	}
	if !schemaConstraint.Check(version) {
		return nil, fmt.Errorf("%w: %s does not satisfy %s", ErrSchemaMismatch, version, SupportedSchema)
	}

	m.normalize()
	return &m, nil
}

// normalize replaces nil tables so consumers can index without checks
func (m *Manifest) normalize() {
	if m.Routes == nil {
		m.Routes = map[string]string{}
	}
	if m.Messages == nil {
		m.Messages = map[string]string{}
	}
	if m.FlashMessages == nil {
		m.FlashMessages = map[string]any{}
	}
	if m.Props == nil {
		m.Props = map[string]json.RawMessage{}
	}
	if m.Assets == nil {
		m.Assets = []Asset{}
	}
	if m.Globals == nil {
		m.Globals = map[string]any{}
	}
}
