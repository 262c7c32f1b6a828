package api

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/pubsub"
	"github.com/fluxbase-eu/islet/internal/storage"
)

// NewDeps wires the manifest store, pub/sub, metrics and tracing selected by cfg
func NewDeps(ctx context.Context, cfg *config.Config) (Deps, error) {
	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
		tracer = observability.NewNoopTracer()
	}

	metrics := observability.NewMetrics()

	provider, err := storage.NewProvider(ctx, &cfg.Storage)
	if err != nil {
		return Deps{}, err
	}
	log.Debug().Str("provider", provider.Name()).Msg("Manifest storage initialized")

	ps, err := pubsub.NewPubSub(ctx, &cfg.PubSub)
	if err != nil {
		return Deps{}, err
	}

	return Deps{
		Store:   storage.NewManifestStore(provider, cfg.Manifest.StoreKey, metrics),
		PubSub:  ps,
		Metrics: metrics,
		Tracer:  tracer,
	}, nil
}

// Close releases the pub/sub connection and flushes pending spans
func (d Deps) Close(ctx context.Context) {
	if d.PubSub != nil {
		if err := d.PubSub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close pub/sub")
		}
	}
	if d.Tracer != nil {
		if err := d.Tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}
}
