package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jamiewh/homedash/internal/config"
	"github.com/jamiewh/homedash/internal/health"
	"github.com/jamiewh/homedash/internal/metrics"
	"github.com/jamiewh/homedash/internal/phone"
	"github.com/jamiewh/homedash/internal/server"
	"github.com/jamiewh/homedash/internal/session"
	"github.com/jamiewh/homedash/internal/spotify"
	"github.com/jamiewh/homedash/internal/tv"
	"github.com/jamiewh/homedash/internal/weather"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	log.Logger = logger

	// Load config (.env merged in when present)
	cfg, err := config.Load(".env")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// The environment can come from the .env file, so decide the log
	// format only after the config is loaded.
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		log.Logger = logger
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Bool("spotify_enabled", cfg.SpotifyEnabled()).
		Bool("tv_enabled", cfg.TVEnabled()).
		Bool("weather_enabled", cfg.WeatherEnabled()).
		Bool("phone_enabled", cfg.PhoneEnabled()).
		Msg("starting home dashboard")

	// Context for startup/shutdown of the state managers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	checker := health.NewChecker(logger)

	// One outbound HTTP client shared by all upstream integrations. The
	// timeout bounds every upstream call end to end.
	httpClient := &http.Client{
		Timeout: cfg.UpstreamTimeout,
		Transport: m.InstrumentRoundTripper(&http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}),
	}

	// Session state managers
	spotifyAuth := session.NewSpotifyAuthManager(cfg.SpotifyRefreshToken)
	tvState := session.NewTVStateManager(cfg.TVAuthToken)

	managers := []session.Manager{spotifyAuth, tvState}
	for _, mgr := range managers {
		if err := mgr.Initialize(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize session state")
		}
	}
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		for _, mgr := range managers {
			if err := mgr.Cleanup(cleanupCtx); err != nil {
				logger.Error().Err(err).Msg("session cleanup error")
			}
		}
	}()

	deps := server.Deps{
		Config:  cfg,
		Checker: checker,
		Metrics: m,
	}

	// IFTTT phone notifier (if configured). Built first so TV wake-failure
	// escalation can ring the phone.
	var notifier *phone.Notifier
	if cfg.PhoneEnabled() {
		notifier = phone.NewNotifier(cfg.IFTTTEventName, cfg.IFTTTWebhookKey, httpClient, logger)
		deps.Phone = notifier
		logger.Info().Msg("phone notifier initialized")
	} else {
		logger.Info().Msg("phone webhook not configured — skipping")
	}

	// Samsung TV client (if configured)
	var tvClient *tv.Client
	if cfg.TVEnabled() {
		tvClient = tv.NewClient(cfg.TVIP, tvState, httpClient, logger,
			tv.WithWakeFailureObserver(func(count int) {
				m.SetTVWakeFailures(count)
				if notifier != nil && count == tv.WakeFailureEscalation {
					go func() {
						ringCtx, ringCancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout)
						defer ringCancel()
						if _, err := notifier.Ring(ringCtx, "TV wake keeps failing, check the TV"); err != nil {
							logger.Error().Err(err).Msg("wake-failure escalation ring failed")
						}
					}()
				}
			}),
		)
		deps.TV = tvClient
		checker.Register("tv", func(ctx context.Context) health.Status {
			if tvClient.Reachable(ctx) {
				return health.StatusOK
			}
			// A sleeping TV is normal; the dashboard still works.
			return health.StatusDegraded
		})
		logger.Info().Str("tv_ip", cfg.TVIP).Msg("TV client initialized")
	} else {
		logger.Info().Msg("TV not configured — skipping")
	}

	// Spotify client (if configured)
	if cfg.SpotifyEnabled() {
		spotifyClient := spotify.NewClient(spotify.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURI:  cfg.SpotifyRedirectURI,
			TVDeviceID:   cfg.TVSpotifyDeviceID,
		}, spotifyAuth, cfg, httpClient, logger,
			spotify.WithCacheObserver(m.CacheObserver("spotify_status")),
		)
		deps.Spotify = spotifyClient
		checker.Register("spotify", func(ctx context.Context) health.Status {
			if spotifyClient.Authenticated() {
				return health.StatusOK
			}
			// Not authenticated yet: the OAuth login flow still works.
			return health.StatusDegraded
		})

		playlists, plErr := cfg.LoadPlaylists()
		if plErr != nil {
			logger.Warn().Err(plErr).Str("file", cfg.PlaylistsFile).Msg("failed to load playlists (non-fatal)")
		} else {
			deps.Playlists = playlists
		}
		logger.Info().Int("playlists", len(deps.Playlists)).Msg("Spotify client initialized")
	} else {
		logger.Info().Msg("Spotify not configured — skipping")
	}

	// Weather client (if configured)
	if cfg.WeatherEnabled() {
		weatherOpts := []weather.Option{
			weather.WithCacheObserver(m.CacheObserver("weather")),
		}
		if cfg.WeatherLocation != "" {
			weatherOpts = append(weatherOpts, weather.WithLocation(cfg.WeatherLocation))
		}
		deps.Weather = weather.NewClient(
			cfg.WeatherAPIKey,
			cfg.WeatherLatitude,
			cfg.WeatherLongitude,
			httpClient,
			logger,
			weatherOpts...,
		)
		checker.Register("weather", func(ctx context.Context) health.Status {
			return health.StatusOK
		})
		logger.Info().
			Float64("lat", cfg.WeatherLatitude).
			Float64("lon", cfg.WeatherLongitude).
			Str("location", cfg.WeatherLocation).
			Msg("weather client initialized")
	} else {
		logger.Info().Msg("weather not configured — skipping")
	}

	srv := server.New(deps, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
		return
	}

	cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	logger.Info().Msg("home dashboard stopped")
}
