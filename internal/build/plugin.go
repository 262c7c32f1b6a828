// Package build drives esbuild to bundle client and island entries and turns
// every finished pass into the set of built assets the manifest is made from.
package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/extract"
	"github.com/fluxbase-eu/islet/internal/islands"
)

// PluginName is the name esbuild reports for diagnostics raised by the plugin
const PluginName = "islet"

// Pass is the outcome of one esbuild pass as seen by the plugin
type Pass struct {
	Assets   assets.BuiltAssets
	Errors   []api.Message
	Warnings []api.Message
}

// PluginOptions configures the islet esbuild plugin. Directories must be absolute.
type PluginOptions struct {
	WorkingDir    string
	PublicDir     string
	RuntimeModule string
	Minify        bool
	Strict        bool
	Registry      *islands.Registry

	// OnStart runs when a pass begins, after the registry is reset
	OnStart func()
	// OnPass receives every completed pass, including failed ones with no assets
	OnPass func(Pass) error
}

// Plugin creates the esbuild plugin that routes entries into the client and
// island namespaces, rewrites island markers and collects built assets.
func Plugin(opts PluginOptions) api.Plugin {
	if opts.RuntimeModule == "" {
		opts.RuntimeModule = islands.DefaultRuntimeModule
	}
	if opts.Registry == nil {
		opts.Registry = islands.NewRegistry()
	}
	transformer := islands.NewTransformer(opts.RuntimeModule)

	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				opts.Registry.Reset()
				if opts.OnStart != nil {
					opts.OnStart()
				}
				return api.OnStartResult{}, nil
			})

			// Only entry points move into the asset namespaces; imports of the
			// same files from other modules resolve normally.
			build.OnResolve(api.OnResolveOptions{Filter: islands.ClientFileFilter},
				entryResolver(assets.ClientScript.Namespace()))
			build.OnResolve(api.OnResolveOptions{Filter: islands.IslandFileFilter},
				entryResolver(assets.IslandScript.Namespace()))

			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(opts.RuntimeModule) + "$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: RuntimeNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: assets.ClientScript.Namespace()},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					source, loader, err := readSource(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{
						Contents:   &source,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     loader,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: assets.IslandScript.Namespace()},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					source, loader, err := readSource(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					load := api.OnLoadResult{
						ResolveDir: filepath.Dir(args.Path),
						Loader:     loader,
					}

					result, err := transformer.Transform(args.Path, source)
					if errors.Is(err, islands.ErrNoIslands) {
						message := api.Message{
							Text:     err.Error(),
							Location: &api.Location{File: args.Path},
						}
						if opts.Strict {
							load.Errors = []api.Message{message}
						} else {
							load.Warnings = []api.Message{message}
						}
						load.Contents = &source
						return load, nil
					}
					if err != nil {
						return api.OnLoadResult{}, err
					}

					opts.Registry.Set(args.Path, result.Islands)
					load.Contents = &result.Contents
					return load, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: componentLoadFilter, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					source, loader, err := readSource(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					load := api.OnLoadResult{Contents: &source, Loader: loader}
					if !HasDefaultExport(source) {
						load.Warnings = []api.Message{{
							Text:     fmt.Sprintf("component %s has no default export", filepath.Base(args.Path)),
							Location: &api.Location{File: args.Path},
						}}
					}
					return load, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: RuntimeNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := runtimeShim
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				pass := Pass{Errors: result.Errors, Warnings: result.Warnings}

				if len(result.Errors) == 0 {
					built, err := collectAssets(opts, result)
					if err != nil {
						return api.OnEndResult{}, err
					}
					pass.Assets = built
				}

				if opts.OnPass != nil {
					if err := opts.OnPass(pass); err != nil {
						return api.OnEndResult{}, err
					}
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

func entryResolver(namespace string) func(api.OnResolveArgs) (api.OnResolveResult, error) {
	return func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		if args.Kind != api.ResolveEntryPoint {
			return api.OnResolveResult{}, nil
		}

		path := args.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(args.ResolveDir, path)
		}
		return api.OnResolveResult{Path: filepath.Clean(path), Namespace: namespace}, nil
	}
}

func readSource(path string) (string, api.Loader, error) {
	loader, err := LoaderForFile(path)
	if err != nil {
		return "", api.LoaderNone, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // esbuild resolved path
	if err != nil {
		return "", api.LoaderNone, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), loader, nil
}

// collectAssets writes every output file and builds its asset record
func collectAssets(opts PluginOptions, result *api.BuildResult) (assets.BuiltAssets, error) {
	metafile, err := assets.ParseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}

	built := make(assets.BuiltAssets, len(result.OutputFiles))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, file := range result.OutputFiles {
		file := file
		g.Go(func() error {
			asset, err := processOutput(opts, metafile, file)
			if err != nil || asset == nil {
				return err
			}

			mu.Lock()
			built[asset.Key] = asset
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return built, nil
}

func processOutput(opts PluginOptions, metafile *assets.Metafile, file api.OutputFile) (*assets.BuiltAsset, error) {
	if err := writeOutput(file, opts.Minify); err != nil {
		return nil, err
	}

	key, err := filepath.Rel(opts.WorkingDir, file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset key for %s: %w", file.Path, err)
	}
	key = filepath.ToSlash(key)

	output, ok := metafile.Outputs[key]
	if !ok {
		log.Debug().Str("asset", key).Msg("Output missing from metafile, skipping")
		return nil, nil
	}

	meta, err := assets.Classify(output)
	if err != nil {
		log.Debug().Err(err).Str("asset", key).Msg("Skipping unclassifiable output")
		return nil, nil
	}

	publicPath := key
	if rel, err := filepath.Rel(opts.PublicDir, file.Path); err == nil {
		publicPath = filepath.ToSlash(rel)
	}

	asset := &assets.BuiltAsset{
		Key:          key,
		Type:         meta.Type,
		Name:         filepath.Base(file.Path),
		PublicPath:   "/" + publicPath,
		Imports:      output.AssetImports(),
		Requirements: extract.All(string(file.Contents)),
	}
	if meta.Type == assets.IslandScript {
		asset.Islands = opts.Registry.Lookup(meta.OriginalPath)
	}

	return asset, nil
}

func writeOutput(file api.OutputFile, minify bool) error {
	if err := os.MkdirAll(filepath.Dir(file.Path), 0755); err != nil { //nolint:gosec // public build output
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	contents := file.Contents
	if loader, ok := outputLoader(file.Path); minify && ok {
		minified := api.Transform(string(contents), api.TransformOptions{
			Loader:            loader,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
		})
		if len(minified.Errors) > 0 {
			return fmt.Errorf("failed to minify %s: %s", file.Path, minified.Errors[0].Text)
		}
		contents = minified.Code
	}

	if err := os.WriteFile(file.Path, contents, 0644); err != nil { //nolint:gosec // public build output
		return fmt.Errorf("failed to write %s: %w", file.Path, err)
	}
	return nil
}
