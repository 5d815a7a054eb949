package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/jamiewh/homedash/internal/dasherr"
)

// PlaybackStatus is the normalized playback state served to the dashboard.
// It is rebuilt from scratch on every non-cached fetch.
type PlaybackStatus struct {
	IsPlaying  bool   `json:"is_playing"`
	TrackName  string `json:"track_name,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	ProgressMS int    `json:"progress_ms,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// playerState is the raw /me/player payload, reduced to what we read.
type playerState struct {
	IsPlaying bool `json:"is_playing"`
	Item      *struct {
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
		DurationMS int `json:"duration_ms"`
	} `json:"item"`
	Device *struct {
		Name string `json:"name"`
	} `json:"device"`
	ProgressMS int `json:"progress_ms"`
}

// CurrentTrack returns the current playback state, cached for a few
// seconds since the dashboard polls it. HTTP 204 from the provider means
// no active device and maps to a valid "not playing" status.
func (c *Client) CurrentTrack(ctx context.Context) (PlaybackStatus, error) {
	return c.statusCache.GetOrCompute(statusCacheKey, statusCacheTTL, func() (PlaybackStatus, error) {
		return c.fetchCurrentTrack(ctx)
	})
}

func (c *Client) fetchCurrentTrack(ctx context.Context) (PlaybackStatus, error) {
	resp, err := c.apiRequest(ctx, http.MethodGet, "/v1/me/player", "", nil, "get_current_track")
	if err != nil {
		return PlaybackStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return PlaybackStatus{IsPlaying: false}, nil
	}

	var state playerState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return PlaybackStatus{}, dasherr.Wrap(dasherr.KindValidation, "spotify", "get_current_track", err)
	}

	status := PlaybackStatus{
		IsPlaying:  state.IsPlaying,
		ProgressMS: state.ProgressMS,
	}
	if state.Item != nil {
		status.TrackName = state.Item.Name
		status.DurationMS = state.Item.DurationMS
		if len(state.Item.Artists) > 0 {
			status.ArtistName = state.Item.Artists[0].Name
		}
	}
	if state.Device != nil {
		status.DeviceName = state.Device.Name
	}

	c.logger.Info().
		Bool("is_playing", status.IsPlaying).
		Str("track", status.TrackName).
		Str("device", status.DeviceName).
		Msg("playback status retrieved")

	return status, nil
}

// command issues a bodyless transport command and invalidates the status
// cache on success so an immediate re-poll sees fresh state.
func (c *Client) command(ctx context.Context, method, path, op string) error {
	resp, err := c.apiRequest(ctx, method, path, "", nil, op)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.statusCache.Invalidate(statusCacheKey)
	c.logger.Info().Str("operation", op).Msg("transport command accepted")
	return nil
}

// Play resumes playback on the active device.
func (c *Client) Play(ctx context.Context) error {
	return c.command(ctx, http.MethodPut, "/v1/me/player/play", "play")
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	return c.command(ctx, http.MethodPut, "/v1/me/player/pause", "pause")
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/v1/me/player/next", "next_track")
}

// Previous goes back to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/v1/me/player/previous", "previous_track")
}

// PlayPlaylist starts context playback of a playlist URI on the active device.
func (c *Client) PlayPlaylist(ctx context.Context, playlistURI string) error {
	return c.playContext(ctx, playlistURI, "")
}

// PlayPlaylistOnDevice starts a playlist pinned to a specific device.
func (c *Client) PlayPlaylistOnDevice(ctx context.Context, playlistURI, deviceID string) error {
	return c.playContext(ctx, playlistURI, deviceID)
}

func (c *Client) playContext(ctx context.Context, playlistURI, deviceID string) error {
	op := "play_playlist"
	rawQuery := ""
	if deviceID != "" {
		op = "play_playlist_on_device"
		q := url.Values{}
		q.Set("device_id", deviceID)
		rawQuery = q.Encode()
	}

	body, err := json.Marshal(map[string]string{"context_uri": playlistURI})
	if err != nil {
		return dasherr.Wrap(dasherr.KindValidation, "spotify", op, err)
	}

	resp, err := c.apiRequest(ctx, http.MethodPut, "/v1/me/player/play", rawQuery, bytes.NewReader(body), op)
	if err != nil {
		var de *dasherr.Error
		if errors.As(err, &de) {
			de.WithDetail("playlist_uri", playlistURI)
			if deviceID != "" {
				de.WithDetail("device_id", deviceID)
			}
		}
		return err
	}
	resp.Body.Close()

	c.statusCache.Invalidate(statusCacheKey)
	c.logger.Info().Str("playlist_uri", playlistURI).Str("device_id", deviceID).Msg("playlist started")
	return nil
}

// TransferPlayback moves playback to a device. With play=false the current
// play/pause state is preserved; play=true forces playback to start.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	body, err := json.Marshal(map[string]interface{}{
		"device_ids": []string{deviceID},
		"play":       play,
	})
	if err != nil {
		return dasherr.Wrap(dasherr.KindValidation, "spotify", "transfer_playback", err)
	}

	resp, err := c.apiRequest(ctx, http.MethodPut, "/v1/me/player", "", bytes.NewReader(body), "transfer_playback")
	if err != nil {
		var de *dasherr.Error
		if errors.As(err, &de) {
			de.WithDetail("device_id", deviceID)
		}
		return err
	}
	resp.Body.Close()

	c.statusCache.Invalidate(statusCacheKey)
	c.logger.Info().Str("device_id", deviceID).Bool("auto_play", play).Msg("playback transferred")
	return nil
}

// InvalidateStatusCache drops the cached playback status.
func (c *Client) InvalidateStatusCache() {
	c.statusCache.Invalidate(statusCacheKey)
}

