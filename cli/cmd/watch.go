package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/islet/internal/build"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever a source file changes",
	Long: `Run an initial build and rebuild on every change. Each completed pass
stores its build manifest and announces it on the pub/sub channel, so running
preview servers pick it up.`,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		builder, deps, err := newBuilder(ctx, cmd)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())

		return builder.Watch(ctx, func(result *build.Result) {
			if err := printResult(result); err != nil {
				log.Error().Err(err).Msg("Failed to print build result")
			}
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&buildMinify, "minify", false, "minify bundles (overrides build.minify)")
	watchCmd.Flags().BoolVar(&buildStrict, "strict", false, "fail on island files without markers and on identifier conflicts")
}
