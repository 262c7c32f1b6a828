package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/internal/api"
	"github.com/fluxbase-eu/islet/internal/build"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the sources and serve island previews",
	Long: `Rebuild on every change and serve a preview page rendering every island of
the current build as a hydration root.`,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		builder, deps, err := newBuilder(ctx, cmd)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())

		server, err := api.NewServer(cfg, deps)
		if err != nil {
			return err
		}
		if err := server.Reload(ctx); err != nil {
			return err
		}

		errs := make(chan error, 1)
		go func() {
			log.Info().Str("address", cfg.Server.Address).Msg("Starting preview server")
			if err := server.Start(); err != nil {
				errs <- err
			}
		}()

		watchErr := make(chan error, 1)
		go func() {
			watchErr <- builder.Watch(ctx, func(result *build.Result) {
				server.SetBuildManifest(result.Manifest)
			})
		}()

		select {
		case err = <-errs:
			stop()
		case err = <-watchErr:
		case <-ctx.Done():
			err = <-watchErr
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("Server forced to shutdown")
		}
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&buildMinify, "minify", false, "minify bundles (overrides build.minify)")
	serveCmd.Flags().BoolVar(&buildStrict, "strict", false, "fail on island files without markers and on identifier conflicts")
}
