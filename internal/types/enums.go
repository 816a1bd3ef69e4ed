package types

// ReportSource identifies which tier of the cache hierarchy produced a
// served report.
type ReportSource string

const (
	SourceFreshCache        ReportSource = "fresh-cache"
	SourceStaleCache        ReportSource = "stale-cache"
	SourceFreshGeneration   ReportSource = "fresh-generation"
	SourceEmergencyFallback ReportSource = "emergency-fallback"
)

// TideState describes the tidal phase at snapshot time.
type TideState string

const (
	TideRising  TideState = "rising"
	TideFalling TideState = "falling"
	TideHigh    TideState = "high"
	TideLow     TideState = "low"
)

// SkillLevel is the audience a set of recommendations targets.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillAll          SkillLevel = "all"
)

// Valid reports whether the skill level is one of the known values.
func (s SkillLevel) Valid() bool {
	switch s {
	case SkillBeginner, SkillIntermediate, SkillAdvanced, SkillAll:
		return true
	}
	return false
}
