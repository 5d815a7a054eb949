// Package server exposes the dashboard core over a fiber HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/config"
	"github.com/jamiewh/homedash/internal/dasherr"
	"github.com/jamiewh/homedash/internal/health"
	"github.com/jamiewh/homedash/internal/metrics"
	"github.com/jamiewh/homedash/internal/requestid"
)

// Deps carries everything the HTTP layer needs. Integration clients are
// nil when the matching credentials are not configured; their routes are
// simply not registered.
type Deps struct {
	Config    *config.Config
	Spotify   SpotifyService
	TV        TVService
	Weather   WeatherService
	Phone     PhoneService
	Playlists []config.Playlist
	Checker   *health.Checker
	Metrics   *metrics.Metrics
}

// Server is the dashboard HTTP API.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	cfg      *config.Config
	logger   zerolog.Logger
}

// New creates and wires the fiber application.
func New(deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	handlers := NewHandlers(deps, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		cfg:      deps.Config,
		logger:   logger.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(deps)
	s.setupRoutes(deps)

	return s
}

func (s *Server) setupMiddleware(deps Deps) {
	s.app.Use(recover.New())

	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if s.cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	s.app.Use(newAPIKeyMiddleware(s.cfg.APIKey, s.logger))

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Msg("api request")

		start := time.Now()
		err := c.Next()
		if deps.Metrics != nil {
			status := c.Response().StatusCode()
			if err != nil {
				var fe *fiber.Error
				var de *dasherr.Error
				switch {
				case errors.As(err, &de):
					status = dasherr.HTTPStatus(de)
					deps.Metrics.RecordError(de.Service, string(de.Kind))
				case errors.As(err, &fe):
					status = fe.Code
				default:
					status = fiber.StatusInternalServerError
				}
			}
			deps.Metrics.RecordRequest(c.Route().Path, strconv.Itoa(status))
			deps.Metrics.ObserveDuration(c.Route().Path, time.Since(start).Seconds())
		}
		return err
	})
}

func (s *Server) setupRoutes(deps Deps) {
	s.app.Get("/healthz", adaptor.HTTPHandlerFunc(health.LivenessHandler()))
	s.app.Get("/readyz", adaptor.HTTPHandlerFunc(deps.Checker.ReadinessHandler()))
	if deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	api := s.app.Group("/api")

	if deps.Spotify != nil {
		sp := api.Group("/spotify")
		sp.Get("/status", s.handlers.SpotifyStatus)
		sp.Post("/play", s.handlers.SpotifyPlay)
		sp.Post("/pause", s.handlers.SpotifyPause)
		sp.Post("/next", s.handlers.SpotifyNext)
		sp.Post("/previous", s.handlers.SpotifyPrevious)
		sp.Post("/playlist", s.handlers.SpotifyPlaylist)
		sp.Get("/playlists", s.handlers.SpotifyPlaylists)
		sp.Get("/auth/login", s.handlers.SpotifyAuthLogin)
		sp.Get("/auth/callback", s.handlers.SpotifyAuthCallback)
		sp.Get("/auth/status", s.handlers.SpotifyAuthStatus)

		if deps.TV != nil {
			sp.Post("/wake-and-play", s.handlers.SpotifyWakeAndPlay)
			sp.Post("/tv-playlist", s.handlers.SpotifyTVPlaylist)
		}
	}

	if deps.TV != nil {
		tvg := api.Group("/tv")
		tvg.Post("/wake", s.handlers.TVWake)
		tvg.Get("/status", s.handlers.TVStatus)
		tvg.Post("/key", s.handlers.TVKey)
		tvg.Post("/app", s.handlers.TVApp)
	}

	if deps.Weather != nil {
		api.Get("/weather", s.handlers.Weather)
	}

	if deps.Phone != nil {
		api.Post("/phone/ring", s.handlers.PhoneRing)
	}
}

// Listen starts the server. Blocks until stopped.
func (s *Server) Listen() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("dashboard API listening")
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("dashboard API shutting down")
	return s.app.Shutdown()
}

// App returns the underlying fiber app (tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// errorBody is the structured error payload. Raw upstream bodies and
// stack traces never appear here.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var de *dasherr.Error
		if errors.As(err, &de) {
			status := dasherr.HTTPStatus(de)
			logger.Error().
				Err(err).
				Str("service", de.Service).
				Str("op", de.Op).
				Int("status", status).
				Str("path", c.Path()).
				Msg("request failed")
			return c.Status(status).JSON(errorBody{
				Code:    string(de.Kind),
				Message: de.Message,
				Details: de.Details,
			})
		}

		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		msg := "An internal error occurred"
		if code != fiber.StatusInternalServerError {
			msg = err.Error()
		}
		return c.Status(code).JSON(errorBody{Code: "internal_error", Message: msg})
	}
}
