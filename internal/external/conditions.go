package external

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/jonboulle/clockwork"

	"swellcast/internal/config"
	"swellcast/internal/types"
)

// ConditionsClient fetches the current ocean-condition snapshot from the
// marine and weather forecast APIs and derives the fields the narrator
// consumes (tide state from the sea-level series, the surfability score
// from wave/wind geometry).
type ConditionsClient struct {
	base    *BaseClient
	marine  string
	weather string
	lat     float64
	lon     float64
	clock   clockwork.Clock
}

// NewConditionsClient builds a conditions fetcher from config. The caller's
// http.Client should carry the conditions timeout.
func NewConditionsClient(httpClient *http.Client, cfg config.ConditionsConfig, opts ...BaseClientOption) *ConditionsClient {
	return &ConditionsClient{
		base:    NewBaseClient(httpClient, "conditions", DefaultRetryPolicy(), "swellcast/1.0", opts...),
		marine:  cfg.MarineBaseURL,
		weather: cfg.WeatherBaseURL,
		lat:     cfg.Latitude,
		lon:     cfg.Longitude,
		clock:   clockwork.NewRealClock(),
	}
}

// WithClock replaces the wall clock used to stamp ObservedAt. Returns the
// client for construction chaining.
func (c *ConditionsClient) WithClock(clock clockwork.Clock) *ConditionsClient {
	c.clock = clock
	return c
}

// marineResponse is the subset of the marine API payload we consume.
type marineResponse struct {
	Current struct {
		Time                  string  `json:"time"`
		WaveHeight            float64 `json:"wave_height"`
		WavePeriod            float64 `json:"wave_period"`
		SwellWaveDirection    float64 `json:"swell_wave_direction"`
		SeaSurfaceTemperature float64 `json:"sea_surface_temperature"`
		SeaLevelHeightMsl     float64 `json:"sea_level_height_msl"`
	} `json:"current"`
	Hourly struct {
		Time              []string  `json:"time"`
		SeaLevelHeightMsl []float64 `json:"sea_level_height_msl"`
	} `json:"hourly"`
}

// weatherResponse is the subset of the forecast API payload we consume.
type weatherResponse struct {
	Current struct {
		Temperature2m    float64 `json:"temperature_2m"`
		WindSpeed10m     float64 `json:"wind_speed_10m"`
		WindDirection10m float64 `json:"wind_direction_10m"`
		WeatherCode      int     `json:"weather_code"`
	} `json:"current"`
}

// FetchConditions implements reports.ConditionsFetcher.
// Any failure -- either upstream call, a malformed payload -- surfaces as
// upstream_conditions_failed so the orchestrator can route to its fallback.
func (c *ConditionsClient) FetchConditions(ctx context.Context, location string) (*types.ConditionSnapshot, error) {
	var marine marineResponse
	if err := c.getJSON(ctx, c.marineURL(), &marine); err != nil {
		return nil, conditionsError("marine data fetch failed", err)
	}

	var weather weatherResponse
	if err := c.getJSON(ctx, c.weatherURL(), &weather); err != nil {
		return nil, conditionsError("weather data fetch failed", err)
	}

	snapshot := &types.ConditionSnapshot{
		WaveHeightM:    marine.Current.WaveHeight,
		WavePeriodS:    marine.Current.WavePeriod,
		SwellDirection: marine.Current.SwellWaveDirection,
		WindSpeedKts:   weather.Current.WindSpeed10m,
		WindDirection:  weather.Current.WindDirection10m,
		TideHeightM:    marine.Current.SeaLevelHeightMsl,
		WaterTempC:     marine.Current.SeaSurfaceTemperature,
		AirTempC:       weather.Current.Temperature2m,
		Weather:        describeWeatherCode(weather.Current.WeatherCode),
		ObservedAt:     c.clock.Now().UTC(),
	}
	snapshot.TideState = deriveTideState(marine.Current.SeaLevelHeightMsl, marine.Hourly.SeaLevelHeightMsl, marine.Current.Time, marine.Hourly.Time)
	snapshot.Score = SurfabilityScore(*snapshot)

	return snapshot, nil
}

func (c *ConditionsClient) marineURL() string {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", c.lat))
	q.Set("longitude", fmt.Sprintf("%.4f", c.lon))
	q.Set("current", "wave_height,wave_period,swell_wave_direction,sea_surface_temperature,sea_level_height_msl")
	q.Set("hourly", "sea_level_height_msl")
	q.Set("forecast_days", "1")
	q.Set("timezone", "UTC")
	return c.marine + "/v1/marine?" + q.Encode()
}

func (c *ConditionsClient) weatherURL() string {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", c.lat))
	q.Set("longitude", fmt.Sprintf("%.4f", c.lon))
	q.Set("current", "temperature_2m,wind_speed_10m,wind_direction_10m,weather_code")
	q.Set("wind_speed_unit", "kn")
	q.Set("timezone", "UTC")
	return c.weather + "/v1/forecast?" + q.Encode()
}

// getJSON performs a resilient GET and decodes the JSON body into dst.
func (c *ConditionsClient) getJSON(ctx context.Context, rawURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// deriveTideState classifies the tidal phase by comparing the current
// sea level against the next hourly value. Near-flat deltas at the top or
// bottom of the hourly range classify as high or low tide.
func deriveTideState(current float64, series []float64, currentTime string, seriesTimes []string) types.TideState {
	if len(series) == 0 {
		return TideStateFromDelta(0, current, current)
	}

	// Find the first hourly sample after the current observation.
	next := series[len(series)-1]
	for i, t := range seriesTimes {
		if t > currentTime {
			next = series[i]
			break
		}
	}

	lo, hi := series[0], series[0]
	for _, v := range series {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	return TideStateFromDelta(next-current, current-lo, hi-current)
}

// tideFlatThreshold is the sea-level delta (meters per hour) below which the
// tide is considered at a turning point rather than moving.
const tideFlatThreshold = 0.05

// TideStateFromDelta maps an hourly sea-level delta and the distances to the
// day's extremes onto a TideState. Exported for direct unit testing.
func TideStateFromDelta(delta, fromLow, fromHigh float64) types.TideState {
	if math.Abs(delta) >= tideFlatThreshold {
		if delta > 0 {
			return types.TideRising
		}
		return types.TideFalling
	}
	if fromHigh <= fromLow {
		return types.TideHigh
	}
	return types.TideLow
}

// SurfabilityScore derives the 0-100 score from the snapshot's wave and wind
// fields. Deterministic; treated as opaque upstream data by the core.
//
// Heuristic: waves near 1-2.5m with long periods score high, strong wind
// degrades everything, flat or storm-sized surf bottoms out.
func SurfabilityScore(c types.ConditionSnapshot) int {
	score := 0.0

	// Wave height: peak at ~1.5m, taper to zero below 0.3m and above 4m.
	switch {
	case c.WaveHeightM < 0.3:
		score += 5
	case c.WaveHeightM <= 2.5:
		score += 50 - math.Abs(c.WaveHeightM-1.5)*15
	case c.WaveHeightM <= 4:
		score += 30 - (c.WaveHeightM-2.5)*10
	default:
		score += 5
	}

	// Period: 8s+ is real swell, 14s+ is as good as it gets.
	switch {
	case c.WavePeriodS >= 14:
		score += 30
	case c.WavePeriodS >= 8:
		score += 15 + (c.WavePeriodS-8)*2.5
	default:
		score += c.WavePeriodS * 1.5
	}

	// Wind: calm adds, strong onshore-ish wind subtracts.
	switch {
	case c.WindSpeedKts <= 5:
		score += 20
	case c.WindSpeedKts <= 15:
		score += 20 - (c.WindSpeedKts-5)*2
	default:
		score -= (c.WindSpeedKts - 15) * 1.5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

// describeWeatherCode maps WMO weather interpretation codes to short
// human-readable descriptions. Unknown codes fall back to a generic label.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code <= 2:
		return "Partly cloudy"
	case code == 3:
		return "Overcast"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unsettled"
	}
}

// conditionsError wraps an upstream failure with the conditions error code.
func conditionsError(msg string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeUpstreamConditions, msg, err)
}
