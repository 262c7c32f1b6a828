// Package htmldom runs the hydration coordinator against parsed server markup.
// Visibility is simulated: an Observer reports intersections only when triggered.
package htmldom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/fluxbase-eu/islet/internal/hydrate"
)

// Element wraps a parsed element node
type Element struct {
	node    *html.Node
	mounted bool
}

// Attribute returns the value of the named attribute
func (e *Element) Attribute(name string) (string, bool) {
	return attr(e.node, name)
}

// Node returns the underlying node
func (e *Element) Node() *html.Node {
	return e.node
}

// Text returns the concatenated text content of the element
func (e *Element) Text() string {
	return collectText(e.node)
}

// Mounted reports whether MarkMounted was called
func (e *Element) Mounted() bool {
	return e.mounted
}

// MarkMounted records that a component took over the element
func (e *Element) MarkMounted() {
	e.mounted = true
}

// Document is a parsed page
type Document struct {
	root     *html.Node
	elements map[*html.Node]*Element
}

// Parse reads an HTML document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{root: root, elements: make(map[*html.Node]*Element)}, nil
}

// ParseString parses an HTML document held in a string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// element returns the one wrapper of n so identities stay stable across scans
func (d *Document) element(n *html.Node) *Element {
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{node: n}
	d.elements[n] = el
	return el
}

// HydrationRoots returns every element carrying the hydration root attribute, in document order
func (d *Document) HydrationRoots() []hydrate.Element {
	var roots []hydrate.Element
	walk(d.root, func(n *html.Node) {
		if _, ok := attr(n, hydrate.AttrHydrationRoot); ok {
			roots = append(roots, d.element(n))
		}
	})
	return roots
}

// ElementByID finds the element with the given id
func (d *Document) ElementByID(id string) (*Element, bool) {
	var found *html.Node
	walk(d.root, func(n *html.Node) {
		if found != nil {
			return
		}
		if v, ok := attr(n, "id"); ok && v == id {
			found = n
		}
	})
	if found == nil {
		return nil, false
	}
	return d.element(found), true
}

// SlotFromHTML returns a manifest slot reading the text of the script element with id
func SlotFromHTML(doc *Document, id string) hydrate.Slot {
	return func() (string, bool) {
		el, ok := doc.ElementByID(id)
		if !ok || el.node.DataAtom != atom.Script {
			return "", false
		}
		return el.Text(), true
	}
}

// Observer is a manually driven visibility observer
type Observer struct {
	callback func([]hydrate.Entry)
	observed []hydrate.Element
}

// NewObserver creates an idle observer
func NewObserver() *Observer {
	return &Observer{}
}

// Factory returns an ObserverFactory that hands out o
func (o *Observer) Factory() hydrate.ObserverFactory {
	return func(callback func([]hydrate.Entry)) hydrate.Observer {
		o.callback = callback
		return o
	}
}

// Observe starts reporting el
func (o *Observer) Observe(el hydrate.Element) {
	if o.indexOf(el) < 0 {
		o.observed = append(o.observed, el)
	}
}

// Unobserve stops reporting el
func (o *Observer) Unobserve(el hydrate.Element) {
	if i := o.indexOf(el); i >= 0 {
		o.observed = append(o.observed[:i], o.observed[i+1:]...)
	}
}

// Observed returns the elements currently observed
func (o *Observer) Observed() []hydrate.Element {
	return append([]hydrate.Element(nil), o.observed...)
}

// Trigger reports elements as intersecting in one batch. Elements that are not
// observed are left out, as a browser would.
func (o *Observer) Trigger(elements ...hydrate.Element) {
	if o.callback == nil {
		return
	}
	var entries []hydrate.Entry
	for _, el := range elements {
		if o.indexOf(el) >= 0 {
			entries = append(entries, hydrate.Entry{Element: el, Intersecting: true})
		}
	}
	if len(entries) > 0 {
		o.callback(entries)
	}
}

// TriggerAll reports every observed element as intersecting
func (o *Observer) TriggerAll() {
	o.Trigger(o.Observed()...)
}

func (o *Observer) indexOf(el hydrate.Element) int {
	for i, observed := range o.observed {
		if observed == el {
			return i
		}
	}
	return -1
}

func attr(n *html.Node, name string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func collectText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
