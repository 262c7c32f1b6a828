package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/islands"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/pubsub"
	"github.com/fluxbase-eu/islet/internal/storage"
)

// ErrNoEntries is returned when the source directory holds no client or island entries
var ErrNoEntries = errors.New("no client or island entry points found")

// Result is the outcome of one completed build pass
type Result struct {
	Manifest  *assets.BuildManifest
	Assets    assets.BuiltAssets
	Conflicts []islands.Conflict
	Warnings  []api.Message
	Duration  time.Duration
}

// Builder runs build passes and publishes their manifests
type Builder struct {
	cfg        config.BuildConfig
	workingDir string
	sourceDir  string
	outDir     string
	publicDir  string
	target     api.Target

	registry *islands.Registry
	store    *storage.ManifestStore
	ps       pubsub.PubSub
	channel  string
	metrics  *observability.Metrics

	// how often Watch looks for added or removed entry files
	rescanInterval time.Duration

	mu        sync.Mutex
	passStart time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithStore persists every manifest through store
func WithStore(store *storage.ManifestStore) Option {
	return func(b *Builder) { b.store = store }
}

// WithPubSub publishes a BuildEvent on channel after every pass
func WithPubSub(ps pubsub.PubSub, channel string) Option {
	return func(b *Builder) {
		b.ps = ps
		b.channel = channel
	}
}

// WithMetrics records build metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(b *Builder) { b.metrics = metrics }
}

// WithEntryRescan sets how often Watch re-discovers entry points
func WithEntryRescan(interval time.Duration) Option {
	return func(b *Builder) { b.rescanInterval = interval }
}

// NewBuilder creates a builder, resolving all configured directories
func NewBuilder(cfg config.BuildConfig, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build configuration: %w", err)
	}

	target, err := TargetFor(cfg.Target)
	if err != nil {
		return nil, err
	}

	workingDir := cfg.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}
	workingDir, err = filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working dir: %w", err)
	}

	b := &Builder{
		cfg:        cfg,
		workingDir: workingDir,
		sourceDir:  resolve(workingDir, cfg.SourceDir),
		outDir:     resolve(workingDir, cfg.OutDir),
		publicDir:  resolve(workingDir, cfg.PublicDir),
		target:     target,
		registry:   islands.NewRegistry(),
		channel:    pubsub.AssetsChannel,

		rescanInterval: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// Registry returns the island registry filled by the most recent pass
func (b *Builder) Registry() *islands.Registry {
	return b.registry
}

// SourceDir returns the absolute source directory
func (b *Builder) SourceDir() string {
	return b.sourceDir
}

// EntryPoints returns discovered entries plus the configured extra entries
func (b *Builder) EntryPoints() ([]string, error) {
	entries, err := DiscoverEntries(b.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover entries: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry] = struct{}{}
	}
	for _, extra := range b.cfg.Entries {
		path := resolve(b.workingDir, extra)
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			entries = append(entries, path)
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoEntries, b.sourceDir)
	}
	return entries, nil
}

func (b *Builder) buildOptions(entries []string, onPass func(Pass) error) api.BuildOptions {
	sourcemap := api.SourceMapNone
	if b.cfg.Sourcemap {
		sourcemap = api.SourceMapLinked
	}

	return api.BuildOptions{
		EntryPoints:   entries,
		Bundle:        true,
		Splitting:     b.cfg.Splitting,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Target:        b.target,
		Outdir:        b.outDir,
		Outbase:       b.sourceDir,
		EntryNames:    "[dir]/[name]",
		ChunkNames:    "chunks/[name]-[hash]",
		AssetNames:    "assets/[name]-[hash]",
		AbsWorkingDir: b.workingDir,
		External:      b.cfg.External,
		Define:        b.cfg.Define,
		Loader:        Loaders(),
		Sourcemap:     sourcemap,
		Write:         false,
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
		Plugins: []api.Plugin{Plugin(PluginOptions{
			WorkingDir:    b.workingDir,
			PublicDir:     b.publicDir,
			RuntimeModule: b.cfg.RuntimeModule,
			Minify:        b.cfg.Minify,
			Strict:        b.cfg.Strict,
			Registry:      b.registry,
			OnStart:       b.markStart,
			OnPass:        onPass,
		})},
	}
}

func (b *Builder) markStart() {
	b.mu.Lock()
	b.passStart = time.Now()
	b.mu.Unlock()
}

func (b *Builder) elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.passStart)
}

// Build runs a single build pass
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	entries, err := b.EntryPoints()
	if err != nil {
		return nil, err
	}

	log.Info().Int("entries", len(entries)).Str("out_dir", b.outDir).Msg("Starting build")

	var (
		result  *Result
		passErr error
	)
	opts := b.buildOptions(entries, func(pass Pass) error {
		result, passErr = b.completePass(ctx, "build", pass)
		return passErr
	})

	built := api.Build(opts)
	if passErr != nil {
		return result, passErr
	}
	if len(built.Errors) > 0 {
		return result, fmt.Errorf("build failed: %s", joinMessages(built.Errors))
	}
	return result, nil
}

// Watch rebuilds on every source change until ctx is cancelled. onResult is
// called after each successful pass. Entry files added to or removed from the
// source directory restart the esbuild context.
func (b *Builder) Watch(ctx context.Context, onResult func(*Result)) error {
	onPass := func(pass Pass) error {
		result, err := b.completePass(ctx, "watch", pass)
		if err != nil {
			log.Error().Err(err).Msg("Build pass failed")
			return nil
		}
		if onResult != nil {
			onResult(result)
		}
		return nil
	}

	entries, err := b.EntryPoints()
	if err != nil {
		return err
	}
	buildCtx, err := b.startWatch(entries, onPass)
	if err != nil {
		return err
	}
	defer func() { buildCtx.Dispose() }()

	ticker := time.NewTicker(b.rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopped watching")
			return nil

		case <-ticker.C:
			current, err := b.EntryPoints()
			if err != nil {
				log.Warn().Err(err).Msg("Entry discovery failed, keeping current entries")
				continue
			}
			if slices.Equal(current, entries) {
				continue
			}

			log.Info().Int("before", len(entries)).Int("after", len(current)).Msg("Entry points changed, restarting watch")
			buildCtx.Dispose()
			next, err := b.startWatch(current, onPass)
			if err != nil {
				return err
			}
			buildCtx, entries = next, current
		}
	}
}

func (b *Builder) startWatch(entries []string, onPass func(Pass) error) (api.BuildContext, error) {
	buildCtx, ctxErr := api.Context(b.buildOptions(entries, onPass))
	if ctxErr != nil {
		return nil, fmt.Errorf("failed to create build context: %s", joinMessages(ctxErr.Errors))
	}
	if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
		buildCtx.Dispose()
		return nil, fmt.Errorf("failed to start watching: %w", err)
	}

	log.Info().Str("source_dir", b.sourceDir).Int("entries", len(entries)).Msg("Watching for changes")
	return buildCtx, nil
}

// completePass turns a finished pass into a build manifest and propagates it
func (b *Builder) completePass(ctx context.Context, mode string, pass Pass) (result *Result, err error) {
	duration := b.elapsed()

	ctx, span := observability.StartBuildSpan(ctx, mode)
	defer func() {
		observability.EndSpan(span, err)
		if b.metrics != nil {
			b.metrics.RecordBuild(duration, err)
			b.metrics.RecordDiagnostics(len(pass.Warnings), len(pass.Errors))
		}
	}()

	for _, warning := range pass.Warnings {
		log.Warn().Str("file", messageFile(warning)).Msg(warning.Text)
	}

	if len(pass.Errors) > 0 {
		for _, message := range pass.Errors {
			log.Error().Str("file", messageFile(message)).Msg(message.Text)
		}
		return nil, fmt.Errorf("build failed with %d errors: %s", len(pass.Errors), joinMessages(pass.Errors))
	}

	conflicts := b.registry.Conflicts()
	for _, conflict := range conflicts {
		log.Warn().
			Str("island", conflict.Identifier).
			Strs("files", conflict.Files).
			Msg("Island declared in more than one file")
	}
	if b.cfg.Strict && len(conflicts) > 0 {
		return nil, fmt.Errorf("island %q declared in more than one file", conflicts[0].Identifier)
	}

	manifest := assets.NewBuildManifest(assets.NewManifestBuilder(pass.Assets).Build())
	declared := manifest.Islands()

	observability.SetSpanAttributes(ctx,
		attribute.String("build.id", manifest.BuildID),
		attribute.Int("build.entries", len(manifest.Entries)),
		attribute.Int("build.islands", len(declared)),
	)

	if b.store != nil {
		if err := b.store.Save(ctx, manifest); err != nil {
			return nil, err
		}
	}

	if b.ps != nil {
		event := pubsub.BuildEvent{
			BuildID:   manifest.BuildID,
			CreatedAt: manifest.CreatedAt,
			Entries:   len(manifest.Entries),
			Islands:   declared,
			Warnings:  len(pass.Warnings),
		}
		if err := pubsub.PublishBuildEvent(ctx, b.ps, b.channel, event); err != nil {
			return nil, err
		}
	}

	if b.metrics != nil {
		byType := make(map[string]int)
		for _, asset := range pass.Assets {
			byType[string(asset.Type)]++
		}
		b.metrics.UpdateBuildStats(byType, len(declared))
	}

	log.Info().
		Str("build_id", manifest.BuildID).
		Int("assets", len(pass.Assets)).
		Int("islands", len(declared)).
		Int("warnings", len(pass.Warnings)).
		Dur("duration", duration).
		Msg("Build completed")

	return &Result{
		Manifest:  manifest,
		Assets:    pass.Assets,
		Conflicts: conflicts,
		Warnings:  pass.Warnings,
		Duration:  duration,
	}, nil
}

func messageFile(message api.Message) string {
	if message.Location == nil {
		return ""
	}
	return message.Location.File
}

func joinMessages(messages []api.Message) string {
	texts := make([]string, 0, len(messages))
	for _, message := range messages {
		texts = append(texts, message.Text)
	}
	return strings.Join(texts, "; ")
}
