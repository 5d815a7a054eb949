package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Playlist is a favourite playlist offered by the dashboard quick actions.
type Playlist struct {
	Name string `yaml:"name" json:"name"`
	URI  string `yaml:"uri" json:"uri"`
}

// LoadPlaylists reads the favourite-playlists YAML file. A missing file
// yields an empty list rather than an error; a malformed file is an error
// so a typo does not silently empty the dashboard.
func (c *Config) LoadPlaylists() ([]Playlist, error) {
	data, err := os.ReadFile(c.PlaylistsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", c.PlaylistsFile, err)
	}

	var playlists []Playlist
	if err := yaml.Unmarshal(data, &playlists); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.PlaylistsFile, err)
	}

	for i, p := range playlists {
		if p.URI == "" {
			return nil, fmt.Errorf("%s: playlist %d has no uri", c.PlaylistsFile, i)
		}
	}
	return playlists, nil
}
