package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/extract"
	"github.com/fluxbase-eu/islet/internal/hydrate/htmldom"
	"github.com/fluxbase-eu/islet/internal/middleware"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/pubsub"
	"github.com/fluxbase-eu/islet/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	publicDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(publicDir, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "build", "Counter.island.js"), []byte("export {}"), 0o644))

	return &config.Config{
		Build: config.BuildConfig{PublicDir: publicDir},
		Manifest: config.ManifestConfig{
			LimitClientManifest: true,
			SlotID:              "__isletManifest",
			FlashCookie:         middleware.DefaultFlashCookie,
		},
		I18n: config.I18nConfig{Locale: "en"},
	}
}

func testBuildManifest() *assets.BuildManifest {
	return assets.NewBuildManifest([]assets.Entry{
		{
			Key:        "public/build/entry.client.js",
			Type:       assets.ClientScript,
			Name:       "entry.client.js",
			PublicPath: "/build/entry.client.js",
		},
		{
			Key:          "public/build/Counter.island.js",
			Type:         assets.IslandScript,
			Name:         "Counter.island.js",
			PublicPath:   "/build/Counter.island.js",
			Islands:      []string{"Counter"},
			Requirements: extract.Requirements{Routes: []string{"preview.island"}, FlashMessages: []string{"errors.count"}},
		},
		{
			Key:        "public/build/Clock.island.js",
			Type:       assets.IslandScript,
			Name:       "Clock.island.js",
			PublicPath: "/build/Clock.island.js",
			Islands:    []string{"Clock"},
		},
	})
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()

	server, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return server
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// =============================================================================
// Health / Errors
// =============================================================================

func TestHealth(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})

	resp, err := server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &status))
	assert.Equal(t, "ok", status["status"])
	assert.NotContains(t, status, "buildId")

	m := testBuildManifest()
	server.SetBuildManifest(m)

	resp, err = server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &status))
	assert.Equal(t, m.BuildID, status["buildId"])
	assert.EqualValues(t, 2, status["islands"])
}

func TestPreview_NoBuild(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})

	resp, err := server.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, "no build manifest available", body["error"])
	assert.EqualValues(t, 503, body["code"])
}

func TestPreview_InvalidProps(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})
	server.SetBuildManifest(testBuildManifest())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/islands/Counter?props="+url.QueryEscape("{nope"), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPreview_UnknownIsland(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})
	server.SetBuildManifest(testBuildManifest())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/islands/Missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// Rendering
// =============================================================================

func TestPreview_IndexRendersEveryIsland(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{Metrics: observability.NewMetrics()})
	server.SetBuildManifest(testBuildManifest())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "wasm-unsafe-eval")

	doc, err := htmldom.ParseString(readBody(t, resp))
	require.NoError(t, err)

	report, err := htmldom.Verify(doc, "__isletManifest")
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
	assert.Equal(t, 2, report.Roots)

	m := report.Manifest
	assert.Equal(t, "preview.index", m.Route.Identifier)
	assert.Equal(t, "/", m.Route.Pattern)
	assert.Equal(t, map[string]string{"preview.island": "/islands/:identifier"}, m.Routes)
	assert.Len(t, m.Assets, 3)
}

func TestPreview_IslandPage(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})
	server.SetBuildManifest(testBuildManifest())

	props := url.QueryEscape(`{"start":3}`)
	resp, err := server.App().Test(httptest.NewRequest("GET", "/islands/Counter?props="+props, nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	doc, err := htmldom.ParseString(readBody(t, resp))
	require.NoError(t, err)

	report, err := htmldom.Verify(doc, "__isletManifest")
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
	assert.Equal(t, 1, report.Roots)

	m := report.Manifest
	assert.Equal(t, "preview.island", m.Route.Identifier)
	assert.Equal(t, map[string]string{"identifier": "Counter"}, m.Route.Params)
	require.Len(t, m.Props, 1)
	for _, data := range m.Props {
		assert.JSONEq(t, `{"start":3}`, string(data))
	}

	var islands []string
	for _, asset := range m.Assets {
		islands = append(islands, asset.Islands...)
	}
	assert.Equal(t, []string{"Counter"}, islands)
}

func TestPreview_FlashMessagesFromCookie(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})
	server.SetBuildManifest(testBuildManifest())

	req := httptest.NewRequest("GET", "/islands/Counter", nil)
	req.AddCookie(&http.Cookie{
		Name:  middleware.DefaultFlashCookie,
		Value: url.QueryEscape(`{"errors.count":"too high","success":"saved"}`),
	})

	resp, err := server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	doc, err := htmldom.ParseString(readBody(t, resp))
	require.NoError(t, err)
	report, err := htmldom.Verify(doc, "__isletManifest")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"errors.count": "too high"}, report.Manifest.FlashMessages)
}

func TestPreview_CatalogMessages(t *testing.T) {
	cfg := testConfig(t)
	cfg.I18n.CatalogPath = filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(cfg.I18n.CatalogPath, []byte("en:\n  preview:\n    title: Garden\n"), 0o644))

	server := newTestServer(t, cfg, Deps{})
	server.SetBuildManifest(testBuildManifest())

	resp, err := server.App().Test(httptest.NewRequest("GET", "/islands/Clock", nil))
	require.NoError(t, err)

	assert.Contains(t, readBody(t, resp), "<title>Clock | Garden</title>")
}

func TestNewServer_MissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.I18n.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewServer(cfg, Deps{})
	require.Error(t, err)
}

func TestStaticAssets(t *testing.T) {
	server := newTestServer(t, testConfig(t), Deps{})

	resp, err := server.App().Test(httptest.NewRequest("GET", "/build/Counter.island.js", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "export {}", readBody(t, resp))
}

// =============================================================================
// Build manifest reloading
// =============================================================================

func TestReload(t *testing.T) {
	ctx := context.Background()
	provider, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := storage.NewManifestStore(provider, "manifests/latest.json", nil)

	server := newTestServer(t, testConfig(t), Deps{Store: store})

	require.NoError(t, server.Reload(ctx))
	assert.Nil(t, server.BuildManifest())

	m := testBuildManifest()
	require.NoError(t, store.Save(ctx, m))
	require.NoError(t, server.Reload(ctx))

	require.NotNil(t, server.BuildManifest())
	assert.Equal(t, m.BuildID, server.BuildManifest().BuildID)
}

func TestWatchBuilds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := storage.NewManifestStore(provider, "manifests/latest.json", nil)
	ps := pubsub.NewLocalPubSub()
	defer ps.Close()

	server := newTestServer(t, testConfig(t), Deps{Store: store, PubSub: ps})

	done := make(chan error, 1)
	go func() { done <- server.WatchBuilds(ctx, pubsub.AssetsChannel) }()

	m := testBuildManifest()
	require.NoError(t, store.Save(ctx, m))

	// Publish until the subscriber is attached
	require.Eventually(t, func() bool {
		_ = pubsub.PublishBuildEvent(ctx, ps, pubsub.AssetsChannel, pubsub.BuildEvent{BuildID: m.BuildID})
		current := server.BuildManifest()
		return current != nil && current.BuildID == m.BuildID
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchBuilds did not return after cancel")
	}
}

func TestCustomErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.True(t, strings.Contains(readBody(t, resp), "Internal Server Error"))
}
