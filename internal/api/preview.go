package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fluxbase-eu/islet/internal/assets"
	"github.com/fluxbase-eu/islet/internal/manifest"
	"github.com/fluxbase-eu/islet/internal/middleware"
	"github.com/fluxbase-eu/islet/internal/observability"
	"github.com/fluxbase-eu/islet/internal/render"
)

var islandSectionTemplate = template.Must(template.New("island").Parse(
	`<section data-island="{{.Identifier}}"><h2><a href="{{.Href}}">{{.Identifier}}</a></h2>{{.Root}}</section>
`))

// handleHealth reports liveness and the build being served
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.metrics != nil {
		s.metrics.UpdateUptime(s.startTime)
	}

	status := fiber.Map{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if m := s.BuildManifest(); m != nil {
		status["buildId"] = m.BuildID
		status["islands"] = len(m.Islands())
	}
	return c.JSON(status)
}

// handleIndex renders every island of the current build as a hydration root
func (s *Server) handleIndex(c *fiber.Ctx) error {
	buildManifest, err := s.requireBuild()
	if err != nil {
		return err
	}

	props, err := queryProps(c)
	if err != nil {
		return err
	}

	return s.renderPage(c, buildManifest, "Islands", buildManifest.Islands(), props)
}

// handleIsland renders a single island as a hydration root
func (s *Server) handleIsland(c *fiber.Ctx) error {
	buildManifest, err := s.requireBuild()
	if err != nil {
		return err
	}

	identifier := c.Params("identifier")
	if _, ok := buildManifest.IslandEntry(identifier); !ok {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("island %s is not part of build %s", identifier, buildManifest.BuildID))
	}

	props, err := queryProps(c)
	if err != nil {
		return err
	}

	return s.renderPage(c, buildManifest, identifier, []string{identifier}, props)
}

func (s *Server) requireBuild() (*assets.BuildManifest, error) {
	m := s.BuildManifest()
	if m == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "no build manifest available")
	}
	return m, nil
}

// queryProps decodes the props query parameter, nil when absent
func queryProps(c *fiber.Ctx) (any, error) {
	raw := c.Query("props")
	if raw == "" {
		return nil, nil
	}

	var props any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "props must be valid JSON")
	}
	return props, nil
}

// renderPage renders islands as sibling hydration roots inside a full document
func (s *Server) renderPage(c *fiber.Ctx, buildManifest *assets.BuildManifest, title string, islands []string, props any) (err error) {
	route := c.Route()

	ctx, span := observability.StartRenderSpan(middleware.TraceContext(c), route.Name)
	defer func() { observability.EndSpan(span, err) }()

	builder := manifest.NewBuilder(manifest.Options{
		BuildManifest: buildManifest,
		Route: &manifest.Route{
			Identifier: route.Name,
			Pattern:    route.Path,
			Params:     routeParams(c),
		},
		Routes:              s.routes,
		Messages:            s.messages,
		FlashMessages:       middleware.FlashMessages(c),
		LimitClientManifest: s.config.Manifest.LimitClientManifest,
	})
	session := render.NewSession(builder, s.metrics)

	var body strings.Builder
	for _, identifier := range islands {
		root, err := session.Root(identifier, props, nil)
		if err != nil {
			return err
		}

		href, err := c.GetRouteURL("preview.island", fiber.Map{"identifier": identifier})
		if err != nil {
			return err
		}

		err = islandSectionTemplate.Execute(&body, struct {
			Identifier string
			Href       string
			Root       template.HTML
		}{identifier, href, root})
		if err != nil {
			return err
		}
	}

	suffix := "islet"
	if message, ok := builder.Messages().Get("preview.title"); ok {
		suffix = message
	}
	title = render.Title(title, "", suffix, "")

	var page bytes.Buffer
	err = render.Document(&page, render.DocumentData{
		Lang:     s.config.I18n.Locale,
		Title:    title,
		Body:     template.HTML(body.String()), //nolint:gosec // produced by html/template
		Manifest: builder.Build(),
		SlotID:   s.config.Manifest.SlotID,
		Metrics:  s.metrics,
	})
	if err != nil {
		return err
	}

	observability.SetSpanAttributes(ctx,
		attribute.String("islet.build_id", buildManifest.BuildID),
		attribute.Int("islet.hydration_roots", len(islands)),
	)
	c.Locals(middleware.BuildIDKey, buildManifest.BuildID)
	c.Locals(middleware.RenderedRootsKey, len(islands))

	c.Type("html", "utf-8")
	return c.Send(page.Bytes())
}

func routeParams(c *fiber.Ctx) map[string]string {
	params := c.AllParams()
	if len(params) == 0 {
		return nil
	}
	return params
}
