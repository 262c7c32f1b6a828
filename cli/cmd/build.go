package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/cli/output"
	"github.com/fluxbase-eu/islet/internal/api"
	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/build"
)

var (
	buildMinify bool
	buildStrict bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle all entry points once and store the build manifest",
	Long: `Bundle every client and island entry point below the source directory,
write the bundles to the output directory and store the build manifest.

Examples:
  islet build
  islet build --minify
  islet build -o json`,
	PreRunE: loadConfig,
	RunE:    runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildMinify, "minify", false, "minify bundles (overrides build.minify)")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "fail on island files without markers and on identifier conflicts")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	builder, deps, err := newBuilder(ctx, cmd)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	result, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	return printResult(result)
}

// newBuilder wires a builder to the configured store, pub/sub and metrics
func newBuilder(ctx context.Context, cmd *cobra.Command) (*build.Builder, api.Deps, error) {
	if cmd.Flags().Changed("minify") {
		cfg.Build.Minify = buildMinify
	}
	if cmd.Flags().Changed("strict") {
		cfg.Build.Strict = buildStrict
	}

	deps, err := api.NewDeps(ctx, cfg)
	if err != nil {
		return nil, api.Deps{}, err
	}

	builder, err := build.NewBuilder(cfg.Build,
		build.WithStore(deps.Store),
		build.WithPubSub(deps.PubSub, cfg.PubSub.Channel),
		build.WithMetrics(deps.Metrics),
	)
	if err != nil {
		deps.Close(ctx)
		return nil, api.Deps{}, err
	}

	return builder, deps, nil
}

func printResult(result *build.Result) error {
	f := GetFormatter()

	if f.Format != output.FormatTable {
		return f.Print(result.Manifest)
	}

	printEntries(f, result.Manifest.Entries)
	for _, conflict := range result.Conflicts {
		f.PrintWarning(fmt.Sprintf("island %s is declared in %s", conflict.Identifier, strings.Join(conflict.Files, ", ")))
	}
	f.PrintSuccess(fmt.Sprintf("Build %s completed in %s with %d warning(s)",
		result.Manifest.BuildID, result.Duration.Round(time.Millisecond), len(result.Warnings)))
	return nil
}

func printEntries(f *output.Formatter, entries []assets.Entry) {
	data := output.TableData{
		Headers: []string{"PATH", "TYPE", "ISLANDS", "ROUTES", "MESSAGES", "FLASH MESSAGES"},
	}
	for _, entry := range entries {
		data.Rows = append(data.Rows, []string{
			entry.PublicPath,
			string(entry.Type),
			strings.Join(entry.Islands, ", "),
			strings.Join(entry.Requirements.Routes, ", "),
			strings.Join(entry.Requirements.Messages, ", "),
			strings.Join(entry.Requirements.FlashMessages, ", "),
		})
	}
	f.PrintTable(data)
}
