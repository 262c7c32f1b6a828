package htmldom

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/fluxbase-eu/islet/internal/hydrate"
	"github.com/fluxbase-eu/islet/internal/manifest"
)

// Problem is one inconsistency found by Verify
type Problem struct {
	Root    string `json:"root" yaml:"root"`
	Message string `json:"message" yaml:"message"`
}

// Report is the result of verifying a rendered page
type Report struct {
	Roots    int                `json:"roots" yaml:"roots"`
	Manifest *manifest.Manifest `json:"-" yaml:"-"`
	Problems []Problem          `json:"problems" yaml:"problems"`
}

// OK reports whether no problems were found
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Verify checks that a rendered page can be hydrated: the manifest slot decodes,
// every root carries its attributes, no root is nested in another, each
// component has an island script and each props hash is present.
func Verify(doc *Document, slotID string) (*Report, error) {
	m, err := hydrate.NewManifestCache(SlotFromHTML(doc, slotID)).Get()
	if err != nil {
		return nil, err
	}

	report := &Report{Manifest: m, Problems: []Problem{}}
	seen := make(map[string]struct{})

	for _, root := range doc.HydrationRoots() {
		report.Roots++
		el := root.(*Element)

		id, _ := el.Attribute(hydrate.AttrHydrationRoot)
		problem := func(format string, args ...any) {
			report.Problems = append(report.Problems, Problem{Root: id, Message: fmt.Sprintf(format, args...)})
		}

		if id == "" {
			problem("missing %s", hydrate.AttrHydrationRoot)
		} else if _, dup := seen[id]; dup {
			problem("duplicate root id")
		}
		seen[id] = struct{}{}

		if outer := enclosingRoot(el.node); outer != nil {
			outerID, _ := attr(outer, hydrate.AttrHydrationRoot)
			problem("nested inside root %s", outerID)
		}

		component, ok := el.Attribute(hydrate.AttrComponent)
		if !ok || component == "" {
			problem("missing %s", hydrate.AttrComponent)
		} else if _, ok := m.AssetFor(component); !ok {
			problem("no island script declares %s", component)
		}

		if hash, _ := el.Attribute(hydrate.AttrProps); hash != "" {
			if _, ok := m.Props[hash]; !ok {
				problem("props %s missing from manifest", hash)
			}
		}
	}

	return report, nil
}

func enclosingRoot(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if _, ok := attr(p, hydrate.AttrHydrationRoot); ok {
			return p
		}
	}
	return nil
}

// IsManifestUnavailable reports whether err means the page carries no usable manifest
func IsManifestUnavailable(err error) bool {
	return errors.Is(err, hydrate.ErrManifestUnavailable)
}
