package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jamiewh/homedash/internal/config"
	"github.com/jamiewh/homedash/internal/spotify"
	"github.com/jamiewh/homedash/internal/tv"
	"github.com/jamiewh/homedash/internal/weather"
)

// commandGrace is slept after a successful transport command before
// responding. The provider applies commands asynchronously; without this
// pause a client that re-polls status immediately still sees the old
// state. A fixed delay is a workaround, not a guarantee: the upstream
// exposes no consistency signal to poll on.
var commandGrace = 500 * time.Millisecond

// SpotifyService is the playback surface the handlers consume.
type SpotifyService interface {
	CurrentTrack(ctx context.Context) (spotify.PlaybackStatus, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	PlayPlaylist(ctx context.Context, uri string) error
	PlayPlaylistOnDevice(ctx context.Context, uri, deviceID string) error
	WakeTVAndPlay(ctx context.Context, tv spotify.TVService) (string, error)
	WakeTVLaunchAppAndPlayPlaylist(ctx context.Context, tv spotify.TVService, uri string) (string, error)
	AuthURL() (string, error)
	ExchangeCode(ctx context.Context, code, state string) error
	Authenticated() bool
}

// TVService is the television surface the handlers consume.
type TVService interface {
	spotify.TVService
	SendKey(ctx context.Context, key string) error
	GetInfo(ctx context.Context) (*tv.Info, error)
	Reachable(ctx context.Context) bool
}

// WeatherService serves the cached weather snapshot.
type WeatherService interface {
	Current(ctx context.Context) (weather.Snapshot, error)
}

// PhoneService rings the house phone.
type PhoneService interface {
	Ring(ctx context.Context, message string) (string, error)
}

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	spotify   SpotifyService
	tv        TVService
	weather   WeatherService
	phone     PhoneService
	playlists []config.Playlist
	logger    zerolog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(deps Deps, logger zerolog.Logger) *Handlers {
	return &Handlers{
		spotify:   deps.Spotify,
		tv:        deps.TV,
		weather:   deps.Weather,
		phone:     deps.Phone,
		playlists: deps.Playlists,
		logger:    logger.With().Str("component", "handlers").Logger(),
	}
}

// --- Spotify ---

// SpotifyStatus handles GET /api/spotify/status.
func (h *Handlers) SpotifyStatus(c *fiber.Ctx) error {
	status, err := h.spotify.CurrentTrack(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (h *Handlers) transportCommand(c *fiber.Ctx, action string, fn func(ctx context.Context) error) error {
	if err := fn(c.Context()); err != nil {
		return err
	}
	// Give the provider time to apply the command before the dashboard
	// re-polls status.
	time.Sleep(commandGrace)
	return c.JSON(fiber.Map{"status": "ok", "action": action})
}

// SpotifyPlay handles POST /api/spotify/play.
func (h *Handlers) SpotifyPlay(c *fiber.Ctx) error {
	return h.transportCommand(c, "play", h.spotify.Play)
}

// SpotifyPause handles POST /api/spotify/pause.
func (h *Handlers) SpotifyPause(c *fiber.Ctx) error {
	return h.transportCommand(c, "pause", h.spotify.Pause)
}

// SpotifyNext handles POST /api/spotify/next.
func (h *Handlers) SpotifyNext(c *fiber.Ctx) error {
	return h.transportCommand(c, "next", h.spotify.Next)
}

// SpotifyPrevious handles POST /api/spotify/previous.
func (h *Handlers) SpotifyPrevious(c *fiber.Ctx) error {
	return h.transportCommand(c, "previous", h.spotify.Previous)
}

type playlistRequest struct {
	URI      string `json:"uri"`
	DeviceID string `json:"device_id"`
}

// SpotifyPlaylist handles POST /api/spotify/playlist.
func (h *Handlers) SpotifyPlaylist(c *fiber.Ctx) error {
	var req playlistRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.URI == "" {
		return fiber.NewError(fiber.StatusBadRequest, "uri is required")
	}

	var err error
	if req.DeviceID != "" {
		err = h.spotify.PlayPlaylistOnDevice(c.Context(), req.URI, req.DeviceID)
	} else {
		err = h.spotify.PlayPlaylist(c.Context(), req.URI)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "play_playlist", "uri": req.URI})
}

// SpotifyPlaylists handles GET /api/spotify/playlists.
func (h *Handlers) SpotifyPlaylists(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"playlists": h.playlists})
}

// SpotifyWakeAndPlay handles POST /api/spotify/wake-and-play.
func (h *Handlers) SpotifyWakeAndPlay(c *fiber.Ctx) error {
	msg, err := h.spotify.WakeTVAndPlay(c.Context(), h.tv)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "wake_and_play", "message": msg})
}

type tvPlaylistRequest struct {
	URI string `json:"uri"`
}

// SpotifyTVPlaylist handles POST /api/spotify/tv-playlist.
func (h *Handlers) SpotifyTVPlaylist(c *fiber.Ctx) error {
	var req tvPlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.URI == "" {
		return fiber.NewError(fiber.StatusBadRequest, "uri is required")
	}

	msg, err := h.spotify.WakeTVLaunchAppAndPlayPlaylist(c.Context(), h.tv, req.URI)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "tv_playlist", "message": msg})
}

// SpotifyAuthLogin handles GET /api/spotify/auth/login.
func (h *Handlers) SpotifyAuthLogin(c *fiber.Ctx) error {
	authURL, err := h.spotify.AuthURL()
	if err != nil {
		return err
	}
	return c.Redirect(authURL, fiber.StatusFound)
}

// SpotifyAuthCallback handles GET /api/spotify/auth/callback.
func (h *Handlers) SpotifyAuthCallback(c *fiber.Ctx) error {
	if provErr := c.Query("error"); provErr != "" {
		return fiber.NewError(fiber.StatusBadRequest, "authorization failed: "+provErr)
	}

	if err := h.spotify.ExchangeCode(c.Context(), c.Query("code"), c.Query("state")); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

// SpotifyAuthStatus handles GET /api/spotify/auth/status.
func (h *Handlers) SpotifyAuthStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"authenticated": h.spotify.Authenticated()})
}

// --- TV ---

// TVWake handles POST /api/tv/wake.
func (h *Handlers) TVWake(c *fiber.Ctx) error {
	msg, err := h.tv.Wake(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "wake_tv", "message": msg})
}

// TVStatus handles GET /api/tv/status.
func (h *Handlers) TVStatus(c *fiber.Ctx) error {
	reachable := h.tv.Reachable(c.Context())
	status := "unreachable"
	if reachable {
		status = "reachable"
	}
	return c.JSON(fiber.Map{"status": status, "reachable": reachable})
}

type keyRequest struct {
	Key string `json:"key"`
}

// TVKey handles POST /api/tv/key.
func (h *Handlers) TVKey(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "key is required")
	}

	if err := h.tv.SendKey(c.Context(), req.Key); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "send_key", "key": req.Key})
}

type appRequest struct {
	AppID      string `json:"app_id"`
	ActionType string `json:"action_type"`
	MetaTag    string `json:"meta_tag"`
}

// TVApp handles POST /api/tv/app.
func (h *Handlers) TVApp(c *fiber.Ctx) error {
	var req appRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.AppID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "app_id is required")
	}

	if err := h.tv.LaunchApp(c.Context(), req.AppID, req.ActionType, req.MetaTag); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "launch_app", "app_id": req.AppID})
}

// --- Weather ---

// Weather handles GET /api/weather.
func (h *Handlers) Weather(c *fiber.Ctx) error {
	snap, err := h.weather.Current(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

// --- Phone ---

type ringRequest struct {
	Message string `json:"message"`
}

// PhoneRing handles POST /api/phone/ring.
func (h *Handlers) PhoneRing(c *fiber.Ctx) error {
	var req ringRequest
	// An empty body is fine; the default message is used.
	_ = c.BodyParser(&req)

	msg, err := h.phone.Ring(c.Context(), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "action": "ring_phone", "message": msg})
}
