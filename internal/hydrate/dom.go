// Package hydrate coordinates the one-time, visibility driven hydration of the
// server rendered roots on a page. The DOM is reached through the interfaces in
// this file so the coordinator runs both in the browser and in tests.
package hydrate

import "encoding/json"

// Root attribute names written by the server renderer
const (
	AttrHydrationRoot = "data-hydration-root"
	AttrComponent     = "data-component"
	AttrProps         = "data-props"
)

// RootSelector matches every hydration root in a document
const RootSelector = "[" + AttrHydrationRoot + "]"

// Element is a DOM element. Implementations must be comparable and return the
// same value for the same node.
type Element interface {
	Attribute(name string) (string, bool)
}

// Document finds the hydration roots of a page
type Document interface {
	HydrationRoots() []Element
}

// Entry is one visibility change reported by an Observer
type Entry struct {
	Element      Element
	Intersecting bool
}

// Observer watches elements for visibility changes
type Observer interface {
	Observe(el Element)
	Unobserve(el Element)
}

// ObserverFactory creates an observer delivering batches of entries to callback
type ObserverFactory func(callback func(entries []Entry)) Observer

// Context is handed to a component when it is mounted into its root
type Context struct {
	Hydrated  bool   `json:"hydrated"`
	Root      string `json:"root"`
	Component string `json:"component"`
	PropsHash string `json:"propsHash"`
}

// Component mounts client behaviour into a server rendered root
type Component interface {
	Mount(el Element, ctx Context, props json.RawMessage) error
}

// ComponentFunc adapts a function to Component
type ComponentFunc func(el Element, ctx Context, props json.RawMessage) error

// Mount calls f
func (f ComponentFunc) Mount(el Element, ctx Context, props json.RawMessage) error {
	return f(el, ctx, props)
}
