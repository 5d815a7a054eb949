package weather

import (
	"math"
	"sort"
)

// Snapshot is the simplified weather response served to the dashboard.
type Snapshot struct {
	TemperatureC   float64 `json:"temperature_c"`
	FeelsLikeC     float64 `json:"feels_like_c"`
	Condition      string  `json:"condition"`
	IconCode       string  `json:"icon_code"`
	Location       string  `json:"location"`
	WindSpeedMS    float64 `json:"wind_speed_ms"`
	WindDirection  int     `json:"wind_direction_deg"`
	WindCompass    string  `json:"wind_compass"`
	Beaufort       int     `json:"beaufort"`
	BeaufortLabel  string  `json:"beaufort_label"`
	Recommendation string  `json:"recommendation"`
}

// Temperature buckets (°C, upper bounds) and the clothing recommendation
// for each resulting band.
var (
	tempThresholds  = []float64{5, 10, 15, 20, 25}
	recommendations = []string{
		"Bundle up! It's very cold outside.",
		"Wear a warm jacket.",
		"Light jacket recommended.",
		"Perfect temperature!",
		"Nice and warm!",
		"Stay cool and hydrated!",
	}
)

// Beaufort scale lower-bound thresholds in m/s for scales 1..12.
var beaufortThresholds = []float64{0.5, 1.6, 3.4, 5.5, 8.0, 10.8, 13.9, 17.2, 20.8, 24.5, 28.5, 32.7}

var beaufortLabels = []string{
	"Calm", "Light air", "Light breeze", "Gentle breeze", "Moderate breeze",
	"Fresh breeze", "Strong breeze", "Near gale", "Gale", "Strong gale",
	"Storm", "Violent storm", "Hurricane",
}

// Wind-origin arrows for the 8 compass points starting at north.
var compassArrows = []string{"↓", "↙", "←", "↖", "↑", "↗", "→", "↘"}

// recommendationFor buckets a temperature into a clothing recommendation.
func recommendationFor(tempC float64) string {
	idx := sort.Search(len(tempThresholds), func(i int) bool {
		return tempThresholds[i] > tempC
	})
	return recommendations[idx]
}

// beaufortFor maps a wind speed in m/s to its Beaufort scale number (0-12).
func beaufortFor(speedMS float64) int {
	return sort.Search(len(beaufortThresholds), func(i int) bool {
		return beaufortThresholds[i] > speedMS
	})
}

// compassFor maps wind direction degrees to an 8-point compass arrow.
// Upstream occasionally reports degrees outside [0, 360); both negative
// and oversized values wrap onto the compass.
func compassFor(deg int) string {
	idx := int(math.Round(float64(deg)/45)) % 8
	if idx < 0 {
		idx += 8
	}
	return compassArrows[idx]
}

// mapSnapshot derives the dashboard snapshot from the raw upstream payload.
// Pure function: same input always yields the same output.
func mapSnapshot(raw *currentWeather) Snapshot {
	condition := "Unknown"
	icon := ""
	if len(raw.Weather) > 0 {
		condition = raw.Weather[0].Main
		icon = raw.Weather[0].Icon
	}

	bf := beaufortFor(raw.Wind.Speed)

	return Snapshot{
		TemperatureC:   raw.Main.Temp,
		FeelsLikeC:     raw.Main.FeelsLike,
		Condition:      condition,
		IconCode:       icon,
		Location:       raw.Name,
		WindSpeedMS:    raw.Wind.Speed,
		WindDirection:  raw.Wind.Deg,
		WindCompass:    compassFor(raw.Wind.Deg),
		Beaufort:       bf,
		BeaufortLabel:  beaufortLabels[bf],
		Recommendation: recommendationFor(raw.Main.Temp),
	}
}
