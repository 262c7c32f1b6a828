package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/pubsub"
	"github.com/fluxbase-eu/islet/internal/storage"
)

var projectSources = map[string]string{
	"src/shared.ts": `export function link() {
  return router.make("users.show");
}
`,
	"src/Badge.ts": `export const Badge = "badge";
`,
	"src/Counter.island.ts": `import { link } from "./shared";
import { Badge } from "./Badge";

const Counter = () => link() + Badge;

export default island("Counter", Counter);
`,
	"src/Clock.island.ts": `import { link } from "./shared";

const Clock = () => i18n.formatMessage("clock.title") + link();

export default island("Clock", Clock);
`,
	"src/entry.client.ts": `if (flashMessages.has("errors.email")) {
  console.log("client");
}
`,
}

func testBuildConfig(dir string) config.BuildConfig {
	return config.BuildConfig{
		WorkingDir:    dir,
		SourceDir:     "src",
		OutDir:        "public/build",
		PublicDir:     "public",
		RuntimeModule: "@islet/runtime",
		Target:        "es2020",
		Splitting:     true,
	}
}

func entryOfType(t *testing.T, manifest *assets.BuildManifest, assetType assets.AssetType, island string) assets.Entry {
	t.Helper()
	for _, entry := range manifest.Entries {
		if entry.Type != assetType {
			continue
		}
		if island == "" {
			return entry
		}
		for _, id := range entry.Islands {
			if id == island {
				return entry
			}
		}
	}
	t.Fatalf("no %s entry for %q", assetType, island)
	return assets.Entry{}
}

// BuilderTestSuite runs real esbuild passes over a throwaway project
type BuilderTestSuite struct {
	suite.Suite
	dir     string
	store   *storage.ManifestStore
	ps      *pubsub.LocalPubSub
	metrics *observability.Metrics
}

// SetupTest writes a fresh project before each test
func (s *BuilderTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	writeFiles(s.T(), s.dir, projectSources)

	provider, err := storage.NewLocalStorage(filepath.Join(s.dir, ".islet"))
	s.Require().NoError(err)

	s.metrics = observability.NewMetrics()
	s.store = storage.NewManifestStore(provider, "manifests/latest.json", s.metrics)
	s.ps = pubsub.NewLocalPubSub()
}

// TearDownTest closes the pubsub backend
func (s *BuilderTestSuite) TearDownTest() {
	_ = s.ps.Close()
}

func (s *BuilderTestSuite) newBuilder(cfg config.BuildConfig) *Builder {
	builder, err := NewBuilder(cfg,
		WithStore(s.store),
		WithPubSub(s.ps, pubsub.AssetsChannel),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return builder
}

func (s *BuilderTestSuite) TestBuild_ProducesReducedManifest() {
	result, err := s.newBuilder(testBuildConfig(s.dir)).Build(context.Background())
	s.Require().NoError(err)

	manifest := result.Manifest
	s.Len(manifest.Entries, 3)
	s.Equal([]string{"Clock", "Counter"}, manifest.Islands())

	counter := entryOfType(s.T(), manifest, assets.IslandScript, "Counter")
	s.Equal("Counter.island.js", counter.Name)
	s.True(strings.HasPrefix(counter.PublicPath, "/build/"))
	s.Contains(counter.Requirements.Routes, "users.show")

	clock := entryOfType(s.T(), manifest, assets.IslandScript, "Clock")
	s.Equal([]string{"clock.title"}, clock.Requirements.Messages)
	s.Contains(clock.Requirements.Routes, "users.show")

	client := entryOfType(s.T(), manifest, assets.ClientScript, "")
	s.Equal([]string{"errors.email"}, client.Requirements.FlashMessages)
	s.Empty(client.Requirements.Routes)

	hasChunk := false
	for _, asset := range result.Assets {
		if asset.Type == assets.ChunkScript {
			hasChunk = true
		}
	}
	s.True(hasChunk, "shared module should be split into a chunk")
}

func (s *BuilderTestSuite) TestBuild_WritesOutputs() {
	result, err := s.newBuilder(testBuildConfig(s.dir)).Build(context.Background())
	s.Require().NoError(err)

	for _, key := range result.Assets.Keys() {
		_, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(key)))
		s.NoError(err, key)
	}

	counter := entryOfType(s.T(), result.Manifest, assets.IslandScript, "Counter")
	contents, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(counter.Key)))
	s.Require().NoError(err)
	s.Contains(string(contents), `"Counter"`)
	s.NotContains(string(contents), `island("Counter"`)
}

func (s *BuilderTestSuite) TestBuild_RecordsIslands() {
	builder := s.newBuilder(testBuildConfig(s.dir))

	_, err := builder.Build(context.Background())
	s.Require().NoError(err)

	s.Equal(2, builder.Registry().Len())
	s.Equal([]string{"Counter"}, builder.Registry().Lookup(filepath.Join(s.dir, "src", "Counter.island.ts")))
	s.Empty(builder.Registry().Conflicts())
}

func (s *BuilderTestSuite) TestBuild_RegistryStartsEmptyEachPass() {
	cfg := testBuildConfig(s.dir)
	cfg.Strict = true
	builder := s.newBuilder(cfg)

	_, err := builder.Build(context.Background())
	s.Require().NoError(err)

	// Clock moves from Clock.island.ts into a new Timer.island.ts
	s.Require().NoError(os.Remove(filepath.Join(s.dir, "src", "Clock.island.ts")))
	writeFiles(s.T(), s.dir, map[string]string{
		"src/Timer.island.ts": `const Clock = () => i18n.formatMessage("clock.title");
const Timer = () => "timer";

export const clock = island("Clock", Clock);
export default island("Timer", Timer);
`,
	})

	result, err := builder.Build(context.Background())
	s.Require().NoError(err)

	s.Empty(result.Conflicts)
	s.Equal([]string{"Clock", "Counter", "Timer"}, result.Manifest.Islands())
	s.Equal(2, builder.Registry().Len())
	s.Nil(builder.Registry().Lookup(filepath.Join(s.dir, "src", "Clock.island.ts")))
	s.Equal([]string{"Clock", "Timer"}, builder.Registry().Lookup(filepath.Join(s.dir, "src", "Timer.island.ts")))

	timer := entryOfType(s.T(), result.Manifest, assets.IslandScript, "Clock")
	s.Equal("Timer.island.js", timer.Name)
	s.Equal([]string{"clock.title"}, timer.Requirements.Messages)
}

func (s *BuilderTestSuite) TestBuild_WarnsOnComponentWithoutDefaultExport() {
	result, err := s.newBuilder(testBuildConfig(s.dir)).Build(context.Background())
	s.Require().NoError(err)

	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning.Text, "Badge.ts has no default export") {
			found = true
		}
	}
	s.True(found, "expected a default export warning for Badge.ts")
}

func (s *BuilderTestSuite) TestBuild_PersistsAndPublishes() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := pubsub.SubscribeBuildEvents(ctx, s.ps, pubsub.AssetsChannel)
	s.Require().NoError(err)

	result, err := s.newBuilder(testBuildConfig(s.dir)).Build(ctx)
	s.Require().NoError(err)

	stored, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(result.Manifest.BuildID, stored.BuildID)

	select {
	case event := <-events:
		s.Equal(result.Manifest.BuildID, event.BuildID)
		s.Equal(3, event.Entries)
		s.Equal([]string{"Clock", "Counter"}, event.Islands)
	case <-time.After(2 * time.Second):
		s.Fail("timed out waiting for build event")
	}

	count, err := testutil.GatherAndCount(s.metrics.Registry(), "islet_builds_total")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *BuilderTestSuite) TestBuild_IslandWithoutMarkers() {
	writeFiles(s.T(), s.dir, map[string]string{
		"src/Empty.island.ts": `export default function Empty() {}
`,
	})

	s.Run("warning by default", func() {
		result, err := s.newBuilder(testBuildConfig(s.dir)).Build(context.Background())
		s.Require().NoError(err)

		found := false
		for _, warning := range result.Warnings {
			if strings.Contains(warning.Text, "declares no islands") {
				found = true
			}
		}
		s.True(found)
		s.Equal([]string{"Clock", "Counter"}, result.Manifest.Islands())
	})

	s.Run("error when strict", func() {
		cfg := testBuildConfig(s.dir)
		cfg.Strict = true

		_, err := s.newBuilder(cfg).Build(context.Background())
		s.Require().Error(err)
		s.Contains(err.Error(), "declares no islands")
	})
}

func (s *BuilderTestSuite) TestBuild_SyntaxError() {
	writeFiles(s.T(), s.dir, map[string]string{
		"src/Broken.island.ts": `export default island("Broken", (;`,
	})

	result, err := s.newBuilder(testBuildConfig(s.dir)).Build(context.Background())

	s.Require().Error(err)
	s.Nil(result)

	_, err = s.store.Load(context.Background())
	s.True(errors.Is(err, storage.ErrNotFound))
}

func (s *BuilderTestSuite) TestBuild_Minify() {
	plainDir := s.T().TempDir()
	writeFiles(s.T(), plainDir, projectSources)

	plain, err := s.newBuilder(testBuildConfig(plainDir)).Build(context.Background())
	s.Require().NoError(err)

	cfg := testBuildConfig(s.dir)
	cfg.Minify = true
	minified, err := s.newBuilder(cfg).Build(context.Background())
	s.Require().NoError(err)

	plainClient := entryOfType(s.T(), plain.Manifest, assets.ClientScript, "")
	minClient := entryOfType(s.T(), minified.Manifest, assets.ClientScript, "")

	plainInfo, err := os.Stat(filepath.Join(plainDir, filepath.FromSlash(plainClient.Key)))
	s.Require().NoError(err)
	minInfo, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(minClient.Key)))
	s.Require().NoError(err)

	s.Less(minInfo.Size(), plainInfo.Size())
	s.Equal(plainClient.Requirements, minClient.Requirements)
}

func (s *BuilderTestSuite) TestWatch_InitialPass() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 4)
	done := make(chan error, 1)
	builder := s.newBuilder(testBuildConfig(s.dir))

	go func() {
		done <- builder.Watch(ctx, func(result *Result) { results <- result })
	}()

	select {
	case result := <-results:
		s.Equal([]string{"Clock", "Counter"}, result.Manifest.Islands())
	case <-time.After(10 * time.Second):
		s.Fail("timed out waiting for the initial watch pass")
	}

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(10 * time.Second):
		s.Fail("watch did not stop")
	}
}

func (s *BuilderTestSuite) TestWatch_PicksUpNewEntries() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 8)
	done := make(chan error, 1)
	builder, err := NewBuilder(testBuildConfig(s.dir), WithEntryRescan(50*time.Millisecond))
	s.Require().NoError(err)

	go func() {
		done <- builder.Watch(ctx, func(result *Result) {
			select {
			case results <- result:
			default:
			}
		})
	}()

	waitFor := func(islands []string) {
		deadline := time.After(10 * time.Second)
		for {
			select {
			case result := <-results:
				if assert.ObjectsAreEqual(islands, result.Manifest.Islands()) {
					return
				}
			case <-deadline:
				s.FailNow("timed out waiting for islands", "%v", islands)
			}
		}
	}

	waitFor([]string{"Clock", "Counter"})

	writeFiles(s.T(), s.dir, map[string]string{
		"src/Timer.island.ts": `export default island("Timer", () => "timer");
`,
	})
	waitFor([]string{"Clock", "Counter", "Timer"})

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(10 * time.Second):
		s.Fail("watch did not stop")
	}
}

func TestBuilderTestSuite(t *testing.T) {
	suite.Run(t, new(BuilderTestSuite))
}

// =============================================================================
// Builder configuration
// =============================================================================

func TestNewBuilder_InvalidConfig(t *testing.T) {
	_, err := NewBuilder(config.BuildConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid build configuration")

	cfg := testBuildConfig(t.TempDir())
	cfg.Target = "es3"
	_, err = NewBuilder(cfg)
	require.Error(t, err)
}

func TestBuilder_NoEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0750))

	builder, err := NewBuilder(testBuildConfig(dir))
	require.NoError(t, err)

	_, err = builder.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEntries))
}

func TestBuilder_EntryPointsIncludesConfiguredEntries(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, projectSources)
	writeFiles(t, dir, map[string]string{"extra/main.ts": `console.log("main")`})

	cfg := testBuildConfig(dir)
	cfg.Entries = []string{"extra/main.ts", "src/entry.client.ts"}

	builder, err := NewBuilder(cfg)
	require.NoError(t, err)

	entries, err := builder.EntryPoints()
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, filepath.Join(dir, "extra", "main.ts"), entries[3])
}
