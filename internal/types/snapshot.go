package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConditionSnapshot captures the numeric and categorical ocean-condition
// values used to produce a narrative. The core treats these as opaque
// upstream data; it never recomputes them.
//
// Implements sql.Scanner and driver.Valuer for JSONB column storage.
type ConditionSnapshot struct {
	WaveHeightM    float64   `json:"wave_height_m"`
	WavePeriodS    float64   `json:"wave_period_s"`
	SwellDirection float64   `json:"swell_direction_deg"`
	WindSpeedKts   float64   `json:"wind_speed_kts"`
	WindDirection  float64   `json:"wind_direction_deg"`
	TideState      TideState `json:"tide_state"`
	TideHeightM    float64   `json:"tide_height_m"`
	WaterTempC     float64   `json:"water_temp_c"`
	AirTempC       float64   `json:"air_temp_c"`
	Weather        string    `json:"weather"`

	// Score is the derived 0-100 surfability score.
	Score int `json:"score"`

	ObservedAt time.Time `json:"observed_at"`
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (c *ConditionSnapshot) Scan(value interface{}) error {
	if value == nil {
		*c = ConditionSnapshot{}
		return nil
	}
	data, err := jsonbBytes(value)
	if err != nil {
		return fmt.Errorf("condition snapshot: %w", err)
	}
	return json.Unmarshal(data, c)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (c ConditionSnapshot) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// RecommendationSet is the structured advice block produced alongside a
// narrative. Stored verbatim; the core never interprets it.
//
// Implements sql.Scanner and driver.Valuer for JSONB column storage.
type RecommendationSet struct {
	BoardType        string     `json:"board_type"`
	WetsuitThickness string     `json:"wetsuit_thickness"`
	SkillLevel       SkillLevel `json:"skill_level"`
	Spots            []string   `json:"spots,omitempty"`
	TimingAdvice     string     `json:"timing_advice,omitempty"`
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (r *RecommendationSet) Scan(value interface{}) error {
	if value == nil {
		*r = RecommendationSet{}
		return nil
	}
	data, err := jsonbBytes(value)
	if err != nil {
		return fmt.Errorf("recommendation set: %w", err)
	}
	return json.Unmarshal(data, r)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (r RecommendationSet) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// jsonbBytes normalizes the raw value a driver hands to Scan.
func jsonbBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
