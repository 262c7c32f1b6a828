// Package render emits server-side hydration roots and wraps rendered bodies in
// a document carrying the response manifest.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/observability"
)

// ErrNestedRoot is returned when a hydration root is rendered inside another one
var ErrNestedRoot = errors.New("hydration roots cannot be nested")

// Root attribute names shared with the hydration coordinator
const (
	AttrHydrationRoot = "data-hydration-root"
	AttrComponent     = "data-component"
	AttrProps         = "data-props"
)

var rootTemplate = template.Must(template.New("root").Parse(
	`<div data-hydration-root="{{.ID}}" data-component="{{.Component}}" data-props="{{.PropsHash}}">{{.Children}}</div>`,
))

// RootContext describes the hydration root currently being rendered
type RootContext struct {
	ID        string
	Component string
	PropsHash string
}

// ChildrenFunc renders the server markup of a root's component
type ChildrenFunc func(s *Session) (template.HTML, error)

// Session renders the hydration roots of one response
type Session struct {
	builder *manifest.Builder
	metrics *observability.Metrics
	nextID  int
	current *RootContext
}

// NewSession creates a session recording into builder. metrics may be nil.
func NewSession(builder *manifest.Builder, metrics *observability.Metrics) *Session {
	return &Session{builder: builder, metrics: metrics}
}

// Builder returns the manifest builder of the response
func (s *Session) Builder() *manifest.Builder {
	return s.builder
}

// Current returns the root being rendered, nil outside of roots
func (s *Session) Current() *RootContext {
	return s.current
}

func (s *Session) nextRootID() string {
	id := fmt.Sprintf(":r%d:", s.nextID)
	s.nextID++
	return id
}

// Root renders component as a hydration root. Its props are registered on the
// manifest and everything its island needs is required.
func (s *Session) Root(component string, props any, children ChildrenFunc) (template.HTML, error) {
	if s.current != nil {
		return "", fmt.Errorf("%w: %s inside %s (%s)", ErrNestedRoot, component, s.current.Component, s.current.ID)
	}

	hash, err := s.builder.RegisterProps(component, props)
	if err != nil {
		return "", err
	}
	if !s.builder.RequireComponent(component) {
		log.Debug().Str("component", component).Msg("Component not declared by any island in the build manifest")
	}

	root := &RootContext{ID: s.nextRootID(), Component: component, PropsHash: hash}

	var inner template.HTML
	if children != nil {
		s.current = root
		inner, err = children(s)
		s.current = nil
		if err != nil {
			return "", fmt.Errorf("failed to render %s: %w", component, err)
		}
	}

	var buf bytes.Buffer
	err = rootTemplate.Execute(&buf, struct {
		ID        string
		Component string
		PropsHash string
		Children  template.HTML
	}{root.ID, root.Component, root.PropsHash, inner})
	if err != nil {
		return "", fmt.Errorf("failed to render hydration root: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRootRendered(component)
	}
	return template.HTML(buf.String()), nil //nolint:gosec // produced by html/template
}

// Require marks identifier as needed by the current root. Outside a root it does nothing.
func (s *Session) Require(capability manifest.Capability, identifier string) error {
	if s.current == nil {
		return nil
	}
	return s.builder.Require(capability, identifier)
}
