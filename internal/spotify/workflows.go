package spotify

import (
	"context"
	"time"
)

// SpotifyTVAppID is the Tizen application id of the Spotify app on the TV.
const SpotifyTVAppID = "3201606009684"

// Settle delays after TV-side steps. The TV and its apps need real
// wall-clock time to become ready and expose no readiness signal, so a
// fixed wait is the only option. Known eventual-consistency workaround,
// not a guarantee.
const (
	tvWakeSettleDelay    = 2 * time.Second
	appLaunchSettleDelay = 3 * time.Second
)

// WakeTVAndPlay wakes the TV and transfers current playback to its
// registered Spotify device. If the wake fails the whole operation fails;
// playback is never assumed.
func (c *Client) WakeTVAndPlay(ctx context.Context, tv TVService) (string, error) {
	if _, err := tv.Wake(ctx); err != nil {
		return "", err
	}

	if err := c.TransferPlayback(ctx, c.tvDeviceID, true); err != nil {
		return "", err
	}

	return "TV woken and playback transferred", nil
}

// WakeTVLaunchAppAndPlayPlaylist runs the full evening workflow: wake the
// TV, launch the Spotify app on it, then start a playlist on the TV's
// device. Each step's failure aborts the remaining steps and surfaces that
// step's error unchanged.
func (c *Client) WakeTVLaunchAppAndPlayPlaylist(ctx context.Context, tv TVService, playlistURI string) (string, error) {
	c.logger.Info().Str("playlist_uri", playlistURI).Msg("starting TV playlist workflow")

	if _, err := tv.Wake(ctx); err != nil {
		return "", err
	}
	if err := c.sleep(ctx, tvWakeSettleDelay); err != nil {
		return "", err
	}

	if err := tv.LaunchApp(ctx, SpotifyTVAppID, "DEEP_LINK", ""); err != nil {
		return "", err
	}
	if err := c.sleep(ctx, appLaunchSettleDelay); err != nil {
		return "", err
	}

	if err := c.PlayPlaylistOnDevice(ctx, playlistURI, c.tvDeviceID); err != nil {
		return "", err
	}

	c.logger.Info().Str("playlist_uri", playlistURI).Msg("TV playlist workflow finished")
	return "TV woken, Spotify launched and playlist started: " + playlistURI, nil
}
