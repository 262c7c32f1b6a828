package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/fluxbase-eu/islet/internal/assets"
)

// Options configures the manifest builder of one response
type Options struct {
	BuildManifest *assets.BuildManifest
	Route         *Route
	Routes        map[string]string
	Messages      map[string]string
	FlashMessages map[string]any
	Globals       map[string]any

	// LimitClientManifest ships only what hydration requires; when false every
	// route, message and flash message is included.
	LimitClientManifest bool
}

// Builder collects what one response requires. It is not safe for concurrent use.
type Builder struct {
	opts          Options
	routes        *RoutesManager
	messages      *MessagesManager
	flashMessages *FlashMessagesManager
	props         map[string]json.RawMessage
	components    map[string]struct{}
}

// NewBuilder creates a builder for one response
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:          opts,
		routes:        NewRoutesManager(opts.Routes),
		messages:      NewMessagesManager(opts.Messages),
		flashMessages: NewFlashMessagesManager(opts.FlashMessages),
		props:         make(map[string]json.RawMessage),
		components:    make(map[string]struct{}),
	}
}

// Routes returns the routes manager
func (b *Builder) Routes() *RoutesManager { return b.routes }

// Messages returns the messages manager
func (b *Builder) Messages() *MessagesManager { return b.messages }

// FlashMessages returns the flash messages manager
func (b *Builder) FlashMessages() *FlashMessagesManager { return b.flashMessages }

// RegisterProps stores the props of a hydration root and returns their hash.
// Equal props share one entry. Empty props are not stored and hash to "".
func (b *Builder) RegisterProps(component string, props any) (string, error) {
	data, err := canonicalJSON(props)
	if err != nil {
		return "", fmt.Errorf("failed to serialize props of %s: %w", component, err)
	}
	if isEmptyJSON(data) {
		return "", nil
	}

	hash := strconv.FormatUint(xxhash.Sum64(data), 36)
	b.props[hash] = data
	return hash, nil
}

// RequireComponent marks component as rendered in a hydration root and requires
// everything its island script was built to use. It reports whether the build
// manifest declares the component.
func (b *Builder) RequireComponent(component string) bool {
	b.components[component] = struct{}{}

	if b.opts.BuildManifest == nil {
		return false
	}
	entry, ok := b.opts.BuildManifest.IslandEntry(component)
	if !ok {
		return false
	}

	for _, id := range entry.Requirements.Routes {
		b.routes.Require(id)
	}
	for _, id := range entry.Requirements.Messages {
		b.messages.Require(id)
	}
	for _, id := range entry.Requirements.FlashMessages {
		b.flashMessages.Require(id)
	}
	return true
}

// Components returns the components rendered as hydration roots, sorted
func (b *Builder) Components() []string {
	components := make([]string, 0, len(b.components))
	for component := range b.components {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// Build produces the wire manifest for the response
func (b *Builder) Build() *Manifest {
	all := !b.opts.LimitClientManifest

	m := &Manifest{
		Schema:        Schema,
		Route:         b.opts.Route,
		Routes:        b.routes.Table(all),
		Messages:      b.messages.Table(all),
		FlashMessages: b.flashMessages.Table(all),
		Props:         make(map[string]json.RawMessage, len(b.props)),
		Assets:        b.assets(all),
		Globals:       b.opts.Globals,
	}
	if b.opts.BuildManifest != nil {
		m.BuildID = b.opts.BuildManifest.BuildID
	}
	for hash, props := range b.props {
		m.Props[hash] = props
	}

	m.normalize()
	return m
}

// assets lists client scripts plus the island scripts of rendered components
func (b *Builder) assets(all bool) []Asset {
	if b.opts.BuildManifest == nil {
		return []Asset{}
	}

	out := []Asset{}
	for _, entry := range b.opts.BuildManifest.Entries {
		switch entry.Type {
		case assets.ClientScript:
		case assets.IslandScript:
			if !all && !b.declaresRendered(entry.Islands) {
				continue
			}
		default:
			continue
		}

		out = append(out, Asset{
			Type:    entry.Type,
			Name:    entry.Name,
			Path:    entry.PublicPath,
			Islands: append([]string(nil), entry.Islands...),
		})
	}
	return out
}

func (b *Builder) declaresRendered(islands []string) bool {
	for _, island := range islands {
		if _, ok := b.components[island]; ok {
			return true
		}
	}
	return false
}

// canonicalJSON encodes v with object keys sorted
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func isEmptyJSON(data []byte) bool {
	switch string(data) {
	case "null", "{}":
		return true
	}
	return false
}
