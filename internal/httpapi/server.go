// Package httpapi provides the HTTP query surface for clipsearch.
package httpapi

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

// Searcher serves a text query, returning matches best-first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Match, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints for clipsearch.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	logger   *zap.Logger
	metrics  *Metrics
	config   *Config
}

// renderer adapts html/template to echo.Renderer.
type renderer struct {
	templates *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// NewServer creates a new HTTP server.
func NewServer(searcher Searcher, logger *zap.Logger, cfg *Config) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &renderer{templates: tmpl}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		searcher: searcher,
		logger:   logger,
		metrics:  NewMetrics(),
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	// HTML search page (htmx fragment on HX-Request)
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/search", s.handleSearchForm)

	// JSON API
	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearchAPI)
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResult is one entry of a SearchResponse. Image is base64-encoded by
// JSON serialization.
type SearchResult struct {
	ImageID string  `json:"image_id"`
	Path    string  `json:"path"`
	Score   float32 `json:"score"`
	Image   []byte  `json:"image,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// pageData feeds the index and results templates.
type pageData struct {
	Query   string
	Results []resultView
}

// resultView is a template-friendly match with the image pre-encoded.
type resultView struct {
	ImageID string
	Score   float32
	Image   template.URL
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIndex renders the search page.
func (s *Server) handleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", pageData{})
}

// handleSearchForm serves the HTML form submission. htmx requests get the
// results fragment, plain form posts get the full page back.
func (s *Server) handleSearchForm(c echo.Context) error {
	query := c.FormValue("q")

	matches, err := s.runSearch(c, query, 0)
	if err != nil {
		return err
	}

	data := pageData{Query: query, Results: viewsFromMatches(matches)}
	if c.Request().Header.Get("HX-Request") != "" {
		return c.Render(http.StatusOK, "results.html", data)
	}
	return c.Render(http.StatusOK, "index.html", data)
}

// handleSearchAPI serves the JSON search endpoint.
func (s *Server) handleSearchAPI(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	matches, err := s.runSearch(c, req.Query, req.Limit)
	if err != nil {
		return err
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			ImageID: m.ImageID,
			Path:    m.Path,
			Score:   m.Score,
			Image:   m.Image,
		}
	}

	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

// runSearch executes a query and translates failures to HTTP errors.
func (s *Server) runSearch(c echo.Context, query string, limit int) ([]search.Match, error) {
	start := time.Now()

	matches, err := s.searcher.Search(c.Request().Context(), query, limit)
	s.metrics.RecordQuery(time.Since(start), err)

	if err != nil {
		switch {
		case errors.Is(err, search.ErrEmptyQuery):
			return nil, echo.NewHTTPError(http.StatusBadRequest, "query is required")
		case errors.Is(err, embeddings.ErrModelUnavailable):
			s.logger.Error("embedding backend unavailable", zap.Error(err))
			return nil, echo.NewHTTPError(http.StatusBadGateway, "embedding backend unavailable")
		default:
			s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
			return nil, echo.NewHTTPError(http.StatusInternalServerError, "search failed")
		}
	}

	return matches, nil
}

// viewsFromMatches prepares matches for HTML rendering.
func viewsFromMatches(matches []search.Match) []resultView {
	views := make([]resultView, len(matches))
	for i, m := range matches {
		views[i] = resultView{
			ImageID: m.ImageID,
			Score:   m.Score,
			Image:   dataURL(m.Path, m.Image),
		}
	}
	return views
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
