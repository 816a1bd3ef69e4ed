package reports

import (
	"strings"
	"testing"

	"swellcast/internal/types"
)

func TestTemplateNarrativeDeterministic(t *testing.T) {
	c := types.ConditionSnapshot{
		WaveHeightM:   1.2,
		WavePeriodS:   10,
		WindSpeedKts:  8,
		WindDirection: 270,
		TideState:     types.TideRising,
		TideHeightM:   1.1,
		WaterTempC:    15,
		Weather:       "Partly cloudy",
		Score:         65,
	}

	first := TemplateNarrative(c)
	second := TemplateNarrative(c)
	if first != second {
		t.Fatal("template narrative is not deterministic")
	}

	for _, want := range []string{"1.2m", "10 second", "8 knots", "W", "rising", "15°C", "65/100"} {
		if !strings.Contains(first, want) {
			t.Errorf("narrative missing %q: %s", want, first)
		}
	}
}

func TestTemplateNarrativeOmitsEmptyWeather(t *testing.T) {
	c := types.ConditionSnapshot{WaveHeightM: 1, WavePeriodS: 8}
	if strings.Contains(TemplateNarrative(c), "Weather:") {
		t.Error("narrative mentions weather when none was observed")
	}
}

func TestTemplateRecommendations(t *testing.T) {
	tests := []struct {
		name      string
		wave      float64
		water     float64
		wantBoard string
		wantSkill types.SkillLevel
		wantSuit  string
	}{
		{"tiny surf", 0.4, 15, "longboard", types.SkillBeginner, "3/2mm"},
		{"mid-size", 1.2, 15, "funboard", types.SkillAll, "3/2mm"},
		{"head high", 1.8, 11, "shortboard", types.SkillIntermediate, "4/3mm"},
		{"heavy", 3.0, 8, "shortboard", types.SkillAdvanced, "5/4mm hooded"},
		{"tropical", 1.0, 26, "funboard", types.SkillAll, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := TemplateRecommendations(types.ConditionSnapshot{
				WaveHeightM: tt.wave,
				WaterTempC:  tt.water,
			})
			if rec.BoardType != tt.wantBoard {
				t.Errorf("board = %s, want %s", rec.BoardType, tt.wantBoard)
			}
			if rec.SkillLevel != tt.wantSkill {
				t.Errorf("skill = %s, want %s", rec.SkillLevel, tt.wantSkill)
			}
			if rec.WetsuitThickness != tt.wantSuit {
				t.Errorf("wetsuit = %s, want %s", rec.WetsuitThickness, tt.wantSuit)
			}
		})
	}
}

func TestCompassPoint(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"}, {45, "NE"}, {90, "E"}, {180, "S"}, {270, "W"}, {359, "N"}, {337.6, "NW"},
	}
	for _, tt := range tests {
		if got := compassPoint(tt.deg); got != tt.want {
			t.Errorf("compassPoint(%.1f) = %s, want %s", tt.deg, got, tt.want)
		}
	}
}
