package reports

import (
	"fmt"
	"strings"

	"swellcast/internal/types"
)

// TemplateNarrative builds a deterministic prose report directly from the
// numeric fields of a snapshot. It is the degraded-but-valid path used when
// the narration collaborator fails: the result is still a real report, not
// an error.
func TemplateNarrative(c types.ConditionSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current surf conditions: %.1fm waves at %.0f second intervals, ",
		c.WaveHeightM, c.WavePeriodS)
	fmt.Fprintf(&b, "wind %.0f knots from %s. ", c.WindSpeedKts, compassPoint(c.WindDirection))
	fmt.Fprintf(&b, "Tide is %s at %.1fm. ", c.TideState, c.TideHeightM)
	if c.Weather != "" {
		fmt.Fprintf(&b, "Weather: %s. ", strings.ToLower(c.Weather))
	}
	fmt.Fprintf(&b, "Water temperature %.0f°C. ", c.WaterTempC)
	fmt.Fprintf(&b, "Surfability score: %d/100 (%s).", c.Score, scoreSummary(c.Score))

	return b.String()
}

// TemplateRecommendations derives a conservative recommendation set from the
// snapshot when the narration collaborator could not supply one.
func TemplateRecommendations(c types.ConditionSnapshot) types.RecommendationSet {
	rec := types.RecommendationSet{
		BoardType:        "funboard",
		WetsuitThickness: wetsuitForWater(c.WaterTempC),
		SkillLevel:       types.SkillAll,
	}

	switch {
	case c.WaveHeightM < 0.6:
		rec.BoardType = "longboard"
		rec.SkillLevel = types.SkillBeginner
	case c.WaveHeightM > 2.5:
		rec.BoardType = "shortboard"
		rec.SkillLevel = types.SkillAdvanced
	case c.WaveHeightM > 1.5:
		rec.BoardType = "shortboard"
		rec.SkillLevel = types.SkillIntermediate
	}

	return rec
}

// wetsuitForWater maps water temperature to a wetsuit thickness band.
func wetsuitForWater(tempC float64) string {
	switch {
	case tempC >= 22:
		return "none"
	case tempC >= 18:
		return "2mm"
	case tempC >= 14:
		return "3/2mm"
	case tempC >= 10:
		return "4/3mm"
	default:
		return "5/4mm hooded"
	}
}

// scoreSummary gives a one-phrase reading of the surfability score.
func scoreSummary(score int) string {
	switch {
	case score >= 80:
		return "firing"
	case score >= 60:
		return "worth a paddle"
	case score >= 40:
		return "rideable"
	case score >= 20:
		return "marginal"
	default:
		return "flat or blown out"
	}
}

// compassPoint converts a bearing in degrees to an 8-point compass label.
func compassPoint(deg float64) string {
	points := []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	idx := int((deg+22.5)/45.0) % 8
	if idx < 0 {
		idx += 8
	}
	return points[idx]
}
