package model

// CoverageResult reports how well a set of source skills (one or more
// VET units) covers a target course's skills. It is derived on demand
// from the current skill sets and never persisted as authoritative
// state.
type CoverageResult struct {
	UnitCodes         []string      `json:"unit_codes"`
	CourseCode        string        `json:"course_code"`
	CoveredSkills     int           `json:"covered_skill_count"`
	TotalTargetSkills int           `json:"total_target_skills"`
	CoverageRatio     float64       `json:"coverage_ratio"`
	MissingSkills     []SkillRecord `json:"missing_skills"`
}

// Recommendation is the tier a credit-transfer decision falls into.
type Recommendation string

const (
	RecommendFull    Recommendation = "full"
	RecommendPartial Recommendation = "partial"
	RecommendNone    Recommendation = "none"
)

// Recommend classifies a final alignment score against the configured
// full/partial thresholds.
func Recommend(score, fullThreshold, partialThreshold float64) Recommendation {
	switch {
	case score >= fullThreshold:
		return RecommendFull
	case score >= partialThreshold:
		return RecommendPartial
	default:
		return RecommendNone
	}
}
