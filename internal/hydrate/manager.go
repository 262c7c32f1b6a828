package hydrate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrHydrationMismatch is returned when server markup and client bundles disagree
var ErrHydrationMismatch = errors.New("hydration mismatch")

// State is the lifecycle position of one hydration root
type State int

const (
	StateDeclared State = iota
	StateObserved
	StateHydrating
	StateHydrated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDeclared:
		return "declared"
	case StateObserved:
		return "observed"
	case StateHydrating:
		return "hydrating"
	case StateHydrated:
		return "hydrated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Failure describes a root that could not be hydrated
type Failure struct {
	Root      string
	Component string
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("failed to hydrate %s in root %s: %v", f.Component, f.Root, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FailureHandler is called for every root that fails to hydrate
type FailureHandler func(failure *Failure)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for hydration events
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithFailureHandler replaces the default handler, which panics
func WithFailureHandler(handler FailureHandler) Option {
	return func(m *Manager) { m.onFailure = handler }
}

// Manager owns the component registry and the hydration state of every root on
// the page. Each root is hydrated at most once.
type Manager struct {
	newObserver ObserverFactory
	cache       *ManifestCache
	logger      zerolog.Logger
	onFailure   FailureHandler

	mu         sync.Mutex
	components map[string]Component
	states     map[Element]State
	observer   Observer
}

// NewManager creates a coordinator observing roots through observers and reading props from cache
func NewManager(observers ObserverFactory, cache *ManifestCache, opts ...Option) *Manager {
	m := &Manager{
		newObserver: observers,
		cache:       cache,
		logger:      log.Logger,
		components:  make(map[string]Component),
		states:      make(map[Element]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.onFailure == nil {
		m.onFailure = m.panicOnFailure
	}
	return m
}

func (m *Manager) panicOnFailure(failure *Failure) {
	m.logger.Error().
		Err(failure.Err).
		Str("root", failure.Root).
		Str("component", failure.Component).
		Msg("Hydration failed")
	panic(failure)
}

// RegisterComponent makes component available to roots declaring identifier
func (m *Manager) RegisterComponent(identifier string, component Component) *Manager {
	m.mu.Lock()
	m.components[identifier] = component
	m.mu.Unlock()

	m.logger.Debug().Str("component", identifier).Msg("Component registered")
	return m
}

// HasComponent reports whether identifier is registered
func (m *Manager) HasComponent(identifier string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.components[identifier]
	return ok
}

// HydrateRoots scans doc for hydration roots and observes each one not seen
// before. It returns the number of newly observed roots.
func (m *Manager) HydrateRoots(doc Document) int {
	roots := doc.HydrationRoots()

	m.mu.Lock()
	if m.observer == nil {
		m.observer = m.newObserver(m.handleEntries)
	}
	observer := m.observer

	var fresh []Element
	for _, root := range roots {
		if _, seen := m.states[root]; seen {
			continue
		}
		m.states[root] = StateObserved
		fresh = append(fresh, root)
	}
	m.mu.Unlock()

	for _, root := range fresh {
		observer.Observe(root)
	}

	m.logger.Debug().Int("roots", len(fresh)).Msg("Observing hydration roots")
	return len(fresh)
}

// State returns the state of el; roots never scanned are Declared
func (m *Manager) State(el Element) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[el]; ok {
		return state
	}
	return StateDeclared
}

// handleEntries is the observer callback. Every intersecting root is
// unobserved before it is hydrated.
func (m *Manager) handleEntries(entries []Entry) {
	for _, entry := range entries {
		if !entry.Intersecting {
			continue
		}
		if !m.claim(entry.Element) {
			continue
		}
		m.hydrate(entry.Element)
	}
}

// claim moves an observed root to Hydrating and stops observing it
func (m *Manager) claim(el Element) bool {
	m.mu.Lock()
	if m.states[el] != StateObserved {
		m.mu.Unlock()
		return false
	}
	m.states[el] = StateHydrating
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer.Unobserve(el)
	}
	return true
}

func (m *Manager) hydrate(el Element) {
	rootID, _ := el.Attribute(AttrHydrationRoot)
	component, _ := el.Attribute(AttrComponent)

	err := m.mount(el)

	m.mu.Lock()
	if err != nil {
		m.states[el] = StateFailed
	} else {
		m.states[el] = StateHydrated
	}
	m.mu.Unlock()

	if err != nil {
		m.onFailure(&Failure{Root: rootID, Component: component, Err: err})
		return
	}
	m.logger.Debug().Str("root", rootID).Str("component", component).Msg("Root hydrated")
}

// mount validates the root and hands it to its component
func (m *Manager) mount(el Element) error {
	rootID, ok := el.Attribute(AttrHydrationRoot)
	if !ok || rootID == "" {
		return fmt.Errorf("%w: root is missing %s", ErrHydrationMismatch, AttrHydrationRoot)
	}
	identifier, ok := el.Attribute(AttrComponent)
	if !ok || identifier == "" {
		return fmt.Errorf("%w: root %s is missing %s", ErrHydrationMismatch, rootID, AttrComponent)
	}
	propsHash, _ := el.Attribute(AttrProps)

	m.mu.Lock()
	component, ok := m.components[identifier]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: component %q rendered in root %s is not registered", ErrHydrationMismatch, identifier, rootID)
	}

	if m.cache == nil {
		return ErrManifestUnavailable
	}
	page, err := m.cache.Get()
	if err != nil {
		return err
	}

	ctx := Context{Hydrated: true, Root: rootID, Component: identifier, PropsHash: propsHash}
	return component.Mount(el, ctx, page.PropsFor(propsHash))
}

// Reset forgets every component, root and cached manifest
func (m *Manager) Reset() {
	m.mu.Lock()
	observer := m.observer
	var observed []Element
	for el, state := range m.states {
		if state == StateObserved {
			observed = append(observed, el)
		}
	}
	m.components = make(map[string]Component)
	m.states = make(map[Element]State)
	m.observer = nil
	m.mu.Unlock()

	if observer != nil {
		for _, el := range observed {
			observer.Unobserve(el)
		}
	}
	if m.cache != nil {
		m.cache.Reset()
	}
}
