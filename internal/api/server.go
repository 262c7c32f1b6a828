package api

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/middleware"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/pubsub"
	"github.com/fluxbase-eu/islet/internal/storage"
)

// Deps are the collaborators of the preview server. Every field is optional.
type Deps struct {
	Store   *storage.ManifestStore
	PubSub  pubsub.PubSub
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Server is the preview HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	store     *storage.ManifestStore
	ps        pubsub.PubSub
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	messages  map[string]string
	routes    map[string]string
	current   atomic.Pointer[assets.BuildManifest]
	startTime time.Time
}

// NewServer creates the preview server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		ServerHeader:          "islet",
		AppName:               "islet preview",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	var messages map[string]string
	if cfg.I18n.CatalogPath != "" {
		catalog, err := manifest.LoadCatalog(cfg.I18n.CatalogPath, cfg.I18n.Locale)
		if err != nil {
			return nil, err
		}
		messages = catalog
		log.Debug().Int("messages", len(messages)).Str("locale", cfg.I18n.Locale).Msg("Message catalog loaded")
	}

	server := &Server{
		app:       app,
		config:    cfg,
		store:     deps.Store,
		ps:        deps.PubSub,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		messages:  messages,
		startTime: time.Now(),
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server, nil
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:     true,
			ServiceName: s.config.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/metrics"},
		}))
	}

	s.app.Use(middleware.SecurityHeaders())
	s.app.Use(middleware.StructuredLogger())

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(middleware.Flash(s.config.Manifest.FlashCookie))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	s.app.Get("/", s.handleIndex).Name("preview.index")
	s.app.Get("/islands/:identifier", s.handleIsland).Name("preview.island")

	// Built assets are addressed by their path below the public directory
	s.app.Static("/", s.config.Build.PublicDir, fiber.Static{
		MaxAge: 3600,
	})

	// Named routes are what bundles reference through router.make
	s.routes = make(map[string]string)
	for _, route := range s.app.GetRoutes(true) {
		if route.Name != "" {
			s.routes[route.Name] = route.Path
		}
	}
}

// BuildManifest returns the build manifest pages are rendered against, nil before the first build
func (s *Server) BuildManifest() *assets.BuildManifest {
	return s.current.Load()
}

// SetBuildManifest replaces the build manifest pages are rendered against
func (s *Server) SetBuildManifest(m *assets.BuildManifest) {
	s.current.Store(m)
	if m != nil {
		log.Info().Str("build_id", m.BuildID).Int("entries", len(m.Entries)).Msg("Build manifest loaded")
	}
}

// Reload reads the latest build manifest from the store. A store without any
// build leaves the current manifest in place.
func (s *Server) Reload(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	m, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Msg("No build manifest stored yet, run a build first")
		return nil
	}
	if err != nil {
		return err
	}

	s.SetBuildManifest(m)
	return nil
}

// WatchBuilds swaps in the announced build manifest whenever a build event
// arrives on channel. It returns when ctx is done.
func (s *Server) WatchBuilds(ctx context.Context, channel string) error {
	if s.ps == nil || s.store == nil {
		return nil
	}

	events, err := pubsub.SubscribeBuildEvents(ctx, s.ps, channel)
	if err != nil {
		return err
	}

	for event := range events {
		m, err := s.store.LoadBuild(ctx, event.BuildID)
		if err != nil {
			log.Error().Err(err).Str("build_id", event.BuildID).Msg("Failed to load announced build manifest")
			continue
		}
		s.SetBuildManifest(m)
	}
	return nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server. Deps are closed by their owner.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
