package htmldom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/islet/internal/hydrate"
)

const page = `<!DOCTYPE html>
<html><head>
<script id="__isletManifest" type="application/json">{"schema":"1.0.0","props":{"h1":{"start":1}},"assets":[{"type":"island-script","name":"Counter.island.js","path":"/build/Counter.island.js","islands":["Counter"]}]}</script>
</head><body>
<div data-hydration-root=":r0:" data-component="Counter" data-props="h1"><button>1</button></div>
<p>between</p>
<div data-hydration-root=":r1:" data-component="Counter" data-props=""></div>
</body></html>`

func TestDocument_HydrationRoots(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	roots := doc.HydrationRoots()
	require.Len(t, roots, 2)

	id, ok := roots[0].Attribute(hydrate.AttrHydrationRoot)
	assert.True(t, ok)
	assert.Equal(t, ":r0:", id)
	assert.Equal(t, "1", roots[0].(*Element).Text())

	_, ok = roots[0].Attribute("data-missing")
	assert.False(t, ok)

	assert.Same(t, roots[1], doc.HydrationRoots()[1])
}

func TestSlotFromHTML(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	raw, ok := SlotFromHTML(doc, "__isletManifest")()
	assert.True(t, ok)
	assert.Contains(t, raw, `"schema":"1.0.0"`)

	_, ok = SlotFromHTML(doc, "missing")()
	assert.False(t, ok)
}

func TestObserver(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)
	roots := doc.HydrationRoots()

	var batches [][]hydrate.Entry
	observer := NewObserver()
	obs := observer.Factory()(func(entries []hydrate.Entry) {
		batches = append(batches, entries)
	})

	observer.Trigger(roots[0])
	assert.Empty(t, batches)

	obs.Observe(roots[0])
	obs.Observe(roots[0])
	obs.Observe(roots[1])
	assert.Len(t, observer.Observed(), 2)

	observer.TriggerAll()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.True(t, batches[0][0].Intersecting)

	obs.Unobserve(roots[0])
	observer.Trigger(roots[0])
	assert.Len(t, batches, 1)
}

// =============================================================================
// Verify Tests
// =============================================================================

func TestVerify(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	report, err := Verify(doc, "__isletManifest")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Roots)
	assert.True(t, report.OK(), "%v", report.Problems)
}

func TestVerify_Problems(t *testing.T) {
	broken := `<html><head>
<script id="__isletManifest" type="application/json">{"schema":"1.0.0"}</script>
</head><body>
<div data-hydration-root=":r0:" data-component="Clock" data-props="nope">
  <div data-hydration-root=":r1:" data-component=""></div>
</div>
<div data-hydration-root=":r0:" data-component="Clock"></div>
</body></html>`
	doc, err := ParseString(broken)
	require.NoError(t, err)

	report, err := Verify(doc, "__isletManifest")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Roots)
	assert.False(t, report.OK())

	messages := make([]string, 0, len(report.Problems))
	for _, p := range report.Problems {
		messages = append(messages, p.Root+": "+p.Message)
	}
	assert.Contains(t, messages, ":r0:: no island script declares Clock")
	assert.Contains(t, messages, ":r0:: props nope missing from manifest")
	assert.Contains(t, messages, ":r1:: nested inside root :r0:")
	assert.Contains(t, messages, ":r1:: missing data-component")
	assert.Contains(t, messages, ":r0:: duplicate root id")
}

func TestVerify_NoManifest(t *testing.T) {
	doc, err := ParseString(`<div data-hydration-root=":r0:" data-component="A"></div>`)
	require.NoError(t, err)

	_, err = Verify(doc, "__isletManifest")
	require.Error(t, err)
	assert.True(t, IsManifestUnavailable(err))
}
