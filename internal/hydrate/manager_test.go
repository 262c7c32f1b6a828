package hydrate_test

import (
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/hydrate"
	"github.com/fluxbase-eu/islet/internal/hydrate/htmldom"
	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/render"
)

type mountCall struct {
	el    hydrate.Element
	ctx   hydrate.Context
	props string
}

type recorder struct {
	calls []mountCall
}

func (r *recorder) component() hydrate.Component {
	return hydrate.ComponentFunc(func(el hydrate.Element, ctx hydrate.Context, props json.RawMessage) error {
		r.calls = append(r.calls, mountCall{el: el, ctx: ctx, props: string(props)})
		return nil
	})
}

// renderPage renders a Counter root with props and a Clock root without
func renderPage(t *testing.T) string {
	t.Helper()

	builder := manifest.NewBuilder(manifest.Options{
		BuildManifest: &assets.BuildManifest{
			Schema: assets.BuildManifestSchema,
			Entries: []assets.Entry{
				{Key: "Clock.island.js", Type: assets.IslandScript, PublicPath: "/build/Clock.island.js", Islands: []string{"Clock"}},
				{Key: "Counter.island.js", Type: assets.IslandScript, PublicPath: "/build/Counter.island.js", Islands: []string{"Counter"}},
			},
		},
		LimitClientManifest: true,
	})
	session := render.NewSession(builder, nil)

	counter, err := session.Root("Counter", map[string]int{"start": 5}, func(*render.Session) (template.HTML, error) {
		return "<button>5</button>", nil
	})
	require.NoError(t, err)
	clock, err := session.Root("Clock", nil, nil)
	require.NoError(t, err)

	var page strings.Builder
	require.NoError(t, render.Document(&page, render.DocumentData{
		Body:     counter + clock,
		Manifest: builder.Build(),
	}))
	return page.String()
}

type fixture struct {
	doc      *htmldom.Document
	observer *htmldom.Observer
	manager  *hydrate.Manager
	failures []*hydrate.Failure
}

func newFixture(t *testing.T, page string, opts ...hydrate.Option) *fixture {
	t.Helper()

	doc, err := htmldom.ParseString(page)
	require.NoError(t, err)

	f := &fixture{doc: doc, observer: htmldom.NewObserver()}
	opts = append([]hydrate.Option{
		hydrate.WithLogger(zerolog.Nop()),
		hydrate.WithFailureHandler(func(failure *hydrate.Failure) {
			f.failures = append(f.failures, failure)
		}),
	}, opts...)

	cache := hydrate.NewManifestCache(htmldom.SlotFromHTML(doc, render.DefaultSlotID))
	f.manager = hydrate.NewManager(f.observer.Factory(), cache, opts...)
	return f
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_HydratesVisibleRootsOnce(t *testing.T) {
	f := newFixture(t, renderPage(t))
	counter := &recorder{}
	clock := &recorder{}
	f.manager.RegisterComponent("Counter", counter.component()).RegisterComponent("Clock", clock.component())

	assert.Equal(t, 2, f.manager.HydrateRoots(f.doc))

	roots := f.doc.HydrationRoots()
	require.Len(t, roots, 2)
	assert.Equal(t, hydrate.StateObserved, f.manager.State(roots[0]))

	f.observer.Trigger(roots[0])
	f.observer.Trigger(roots[0])

	require.Len(t, counter.calls, 1)
	assert.Equal(t, hydrate.StateHydrated, f.manager.State(roots[0]))
	assert.Equal(t, hydrate.StateObserved, f.manager.State(roots[1]))
	assert.Empty(t, clock.calls)

	f.observer.TriggerAll()

	require.Len(t, clock.calls, 1)
	assert.Len(t, counter.calls, 1)
	assert.Empty(t, f.observer.Observed())
	assert.Empty(t, f.failures)
}

func TestManager_MountContextAndProps(t *testing.T) {
	f := newFixture(t, renderPage(t))
	counter := &recorder{}
	clock := &recorder{}
	f.manager.RegisterComponent("Counter", counter.component()).RegisterComponent("Clock", clock.component())

	f.manager.HydrateRoots(f.doc)
	f.observer.TriggerAll()

	require.Len(t, counter.calls, 1)
	call := counter.calls[0]
	assert.True(t, call.ctx.Hydrated)
	assert.Equal(t, ":r0:", call.ctx.Root)
	assert.Equal(t, "Counter", call.ctx.Component)
	assert.NotEmpty(t, call.ctx.PropsHash)
	assert.JSONEq(t, `{"start":5}`, call.props)

	require.Len(t, clock.calls, 1)
	assert.Equal(t, ":r1:", clock.calls[0].ctx.Root)
	assert.JSONEq(t, `{}`, clock.calls[0].props)
}

func TestManager_UnobservesBeforeMount(t *testing.T) {
	f := newFixture(t, renderPage(t))
	var observedDuringMount []hydrate.Element
	f.manager.RegisterComponent("Counter", hydrate.ComponentFunc(func(el hydrate.Element, _ hydrate.Context, _ json.RawMessage) error {
		observedDuringMount = f.observer.Observed()
		return nil
	}))

	f.manager.HydrateRoots(f.doc)
	roots := f.doc.HydrationRoots()
	f.observer.Trigger(roots[0])

	assert.NotContains(t, observedDuringMount, roots[0])
	assert.Contains(t, observedDuringMount, roots[1])
}

func TestManager_UnregisteredComponent(t *testing.T) {
	f := newFixture(t, renderPage(t))
	counter := &recorder{}
	f.manager.RegisterComponent("Counter", counter.component())

	f.manager.HydrateRoots(f.doc)
	f.observer.TriggerAll()

	require.Len(t, f.failures, 1)
	failure := f.failures[0]
	assert.True(t, errors.Is(failure, hydrate.ErrHydrationMismatch))
	assert.Equal(t, "Clock", failure.Component)
	assert.Equal(t, ":r1:", failure.Root)
	assert.Equal(t, hydrate.StateFailed, f.manager.State(f.doc.HydrationRoots()[1]))
	assert.Len(t, counter.calls, 1)
}

func TestManager_MissingAttributes(t *testing.T) {
	page := `<html><body>
<script id="__isletManifest" type="application/json">{"schema":"1.0.0"}</script>
<div data-hydration-root=":r0:"></div>
<div data-hydration-root="" data-component="Counter"></div>
</body></html>`
	f := newFixture(t, page)
	counter := &recorder{}
	f.manager.RegisterComponent("Counter", counter.component())

	f.manager.HydrateRoots(f.doc)
	f.observer.TriggerAll()

	require.Len(t, f.failures, 2)
	for _, failure := range f.failures {
		assert.True(t, errors.Is(failure, hydrate.ErrHydrationMismatch))
	}
	assert.Empty(t, counter.calls)
}

func TestManager_ManifestUnavailable(t *testing.T) {
	f := newFixture(t, `<div data-hydration-root=":r0:" data-component="Counter"></div>`)
	counter := &recorder{}
	f.manager.RegisterComponent("Counter", counter.component())

	f.manager.HydrateRoots(f.doc)
	f.observer.TriggerAll()

	require.Len(t, f.failures, 1)
	assert.True(t, errors.Is(f.failures[0], hydrate.ErrManifestUnavailable))
	assert.Empty(t, counter.calls)
}

func TestManager_DefaultFailureHandlerPanics(t *testing.T) {
	doc, err := htmldom.ParseString(renderPage(t))
	require.NoError(t, err)
	observer := htmldom.NewObserver()
	manager := hydrate.NewManager(observer.Factory(),
		hydrate.NewManifestCache(htmldom.SlotFromHTML(doc, render.DefaultSlotID)),
		hydrate.WithLogger(zerolog.Nop()))

	manager.HydrateRoots(doc)

	assert.Panics(t, func() { observer.TriggerAll() })
}

func TestManager_ComponentError(t *testing.T) {
	f := newFixture(t, renderPage(t))
	boom := errors.New("boom")
	f.manager.RegisterComponent("Counter", hydrate.ComponentFunc(func(hydrate.Element, hydrate.Context, json.RawMessage) error {
		return boom
	}))

	f.manager.HydrateRoots(f.doc)
	f.observer.Trigger(f.doc.HydrationRoots()[0])

	require.Len(t, f.failures, 1)
	assert.True(t, errors.Is(f.failures[0], boom))
	assert.Contains(t, f.failures[0].Error(), "failed to hydrate Counter in root :r0:")
}

func TestManager_RescanDoesNotReobserve(t *testing.T) {
	f := newFixture(t, renderPage(t))
	f.manager.RegisterComponent("Counter", (&recorder{}).component())

	assert.Equal(t, 2, f.manager.HydrateRoots(f.doc))
	f.observer.Trigger(f.doc.HydrationRoots()[0])

	assert.Equal(t, 0, f.manager.HydrateRoots(f.doc))
	assert.Len(t, f.observer.Observed(), 1)
}

func TestManager_Reset(t *testing.T) {
	f := newFixture(t, renderPage(t))
	f.manager.RegisterComponent("Counter", (&recorder{}).component())
	f.manager.HydrateRoots(f.doc)

	f.manager.Reset()

	assert.False(t, f.manager.HasComponent("Counter"))
	assert.Equal(t, hydrate.StateDeclared, f.manager.State(f.doc.HydrationRoots()[0]))
	assert.Empty(t, f.observer.Observed())
	assert.Equal(t, 2, f.manager.HydrateRoots(f.doc))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "declared", hydrate.StateDeclared.String())
	assert.Equal(t, "hydrated", hydrate.StateHydrated.String())
	assert.Equal(t, "failed", hydrate.StateFailed.String())
	assert.Equal(t, "state(42)", hydrate.State(42).String())
}
