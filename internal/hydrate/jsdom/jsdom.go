//go:build js && wasm

// Package jsdom binds the hydration coordinator to the browser DOM.
package jsdom

import (
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/fluxbase-eu/islet/internal/hydrate"
)

// Element wraps a DOM element. Document hands out one wrapper per node.
type Element struct {
	value js.Value
}

// Attribute returns the value of the named attribute
func (e *Element) Attribute(name string) (string, bool) {
	v := e.value.Call("getAttribute", name)
	if v.IsNull() || v.IsUndefined() {
		return "", false
	}
	return v.String(), true
}

// Value returns the wrapped DOM node
func (e *Element) Value() js.Value {
	return e.value
}

// Document is the page document
type Document struct {
	mu       sync.Mutex
	document js.Value
	elements []*Element
}

// NewDocument wraps globalThis.document
func NewDocument() *Document {
	return &Document{document: js.Global().Get("document")}
}

// wrap returns the existing wrapper of v or creates one
func (d *Document) wrap(v js.Value) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range d.elements {
		if el.value.Equal(v) {
			return el
		}
	}
	el := &Element{value: v}
	d.elements = append(d.elements, el)
	return el
}

// HydrationRoots returns every hydration root on the page
func (d *Document) HydrationRoots() []hydrate.Element {
	nodes := d.document.Call("querySelectorAll", hydrate.RootSelector)
	roots := make([]hydrate.Element, 0, nodes.Length())
	for i := 0; i < nodes.Length(); i++ {
		roots = append(roots, d.wrap(nodes.Index(i)))
	}
	return roots
}

// Slot reads the text of the element with id
func (d *Document) Slot(id string) hydrate.Slot {
	return func() (string, bool) {
		el := d.document.Call("getElementById", id)
		if el.IsNull() || el.IsUndefined() {
			return "", false
		}
		return el.Get("textContent").String(), true
	}
}

// ObserverFactory creates IntersectionObserver backed observers
func (d *Document) ObserverFactory() hydrate.ObserverFactory {
	return func(callback func([]hydrate.Entry)) hydrate.Observer {
		o := &observer{doc: d}
		o.callback = js.FuncOf(func(this js.Value, args []js.Value) any {
			list := args[0]
			entries := make([]hydrate.Entry, 0, list.Length())
			for i := 0; i < list.Length(); i++ {
				entry := list.Index(i)
				entries = append(entries, hydrate.Entry{
					Element:      d.wrap(entry.Get("target")),
					Intersecting: entry.Get("isIntersecting").Bool(),
				})
			}
			callback(entries)
			return nil
		})
		o.value = js.Global().Get("IntersectionObserver").New(o.callback)
		return o
	}
}

type observer struct {
	doc      *Document
	value    js.Value
	callback js.Func
}

func (o *observer) Observe(el hydrate.Element) {
	o.value.Call("observe", el.(*Element).value)
}

func (o *observer) Unobserve(el hydrate.Element) {
	o.value.Call("unobserve", el.(*Element).value)
}

// Component mounts a JavaScript component. When globalThis.__isletMount is
// defined it receives (element, component, props, context); otherwise the
// component itself is called with the same element, props and context.
type Component struct {
	Value js.Value
}

// Mount hands the root to the JavaScript side
func (c Component) Mount(el hydrate.Element, ctx hydrate.Context, props json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("component threw: %v", r)
		}
	}()

	jsonAPI := js.Global().Get("JSON")
	jsProps := jsonAPI.Call("parse", string(props))
	ctxJSON, _ := json.Marshal(ctx)
	jsCtx := jsonAPI.Call("parse", string(ctxJSON))
	node := el.(*Element).value

	if mount := js.Global().Get("__isletMount"); mount.Type() == js.TypeFunction {
		mount.Invoke(node, c.Value, jsProps, jsCtx)
		return nil
	}
	if c.Value.Type() != js.TypeFunction {
		return fmt.Errorf("component %s is not callable", ctx.Component)
	}
	c.Value.Invoke(node, jsProps, jsCtx)
	return nil
}
