package hydrate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fluxbase-eu/islet/internal/manifest"
)

// ErrManifestUnavailable is returned when the page carries no manifest
var ErrManifestUnavailable = errors.New("manifest is not available on this page")

// Slot reads the raw manifest the server embedded in the page
type Slot func() (string, bool)

// ManifestCache decodes the page manifest on first use and keeps it for the
// lifetime of the page.
type ManifestCache struct {
	slot     Slot
	mu       sync.Mutex
	manifest *manifest.Manifest
}

// NewManifestCache creates a cache reading from slot
func NewManifestCache(slot Slot) *ManifestCache {
	return &ManifestCache{slot: slot}
}

// Get returns the decoded manifest
func (c *ManifestCache) Get() (*manifest.Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manifest != nil {
		return c.manifest, nil
	}

	if c.slot == nil {
		return nil, ErrManifestUnavailable
	}
	raw, ok := c.slot()
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrManifestUnavailable
	}

	m, err := manifest.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestUnavailable, err)
	}

	c.manifest = m
	return m, nil
}

// Reset drops the cached manifest
func (c *ManifestCache) Reset() {
	c.mu.Lock()
	c.manifest = nil
	c.mu.Unlock()
}
