package transfer

import (
	"math"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
)

// Alignment component weights; they sum to 1.
const (
	weightCoverage   = 0.40
	weightQuality    = 0.25
	weightLevel      = 0.20
	weightContext    = 0.10
	weightConfidence = 0.05
)

// Edge-case penalties, applied multiplicatively to the base score.
const (
	penaltyMinorLevelGap    = 0.05
	penaltyMajorLevelGap    = 0.20
	penaltyContextImbalance = 0.15
	penaltyOutdatedContent  = 0.25
	penaltyMissingPrereqs   = 0.30
	penaltySizeMismatch     = 0.10
)

// contextImbalanceTrigger is the imbalance score above which the
// context penalty applies.
const contextImbalanceTrigger = 0.4

// EdgeFlags carries edge-case analysis results that the scorer cannot
// derive from the skill sets alone. A nil EdgeFlags skips those
// penalties; level-gap and size-mismatch penalties are always computed.
type EdgeFlags struct {
	ContextImbalance     float64 `json:"context_imbalance"`
	OutdatedContent      bool    `json:"outdated_content"`
	MissingPrerequisites bool    `json:"missing_prerequisites"`
}

// MatchScore is the unified alignment breakdown for one unit-set /
// course pair.
type MatchScore struct {
	SkillCoverage    float64            `json:"skill_coverage"`
	SkillQuality     float64            `json:"skill_quality"`
	LevelAlignment   float64            `json:"level_alignment"`
	ContextAlignment float64            `json:"context_alignment"`
	Confidence       float64            `json:"confidence"`
	Penalties        map[string]float64 `json:"edge_penalties,omitempty"`
	BaseScore        float64            `json:"base_score"`
	FinalScore       float64            `json:"final_score"`
}

// AlignmentScore combines coverage, match quality, level and context
// alignment and extraction confidence into one score, then discounts it
// by the applicable edge-case penalties.
func AlignmentScore(source, target []model.SkillRecord, matches []Match, edge *EdgeFlags) MatchScore {
	s := MatchScore{
		SkillCoverage:    weightedCoverage(matches, len(target)),
		SkillQuality:     matchQuality(source, target, matches),
		LevelAlignment:   levelAlignment(source, target),
		ContextAlignment: contextAlignment(source, target),
		Confidence:       meanConfidence(source, target),
		Penalties:        penalties(source, target, edge),
	}

	s.BaseScore = weightCoverage*s.SkillCoverage +
		weightQuality*s.SkillQuality +
		weightLevel*s.LevelAlignment +
		weightContext*s.ContextAlignment +
		weightConfidence*s.Confidence

	total := 0.0
	for _, p := range s.Penalties {
		total += p
	}
	s.FinalScore = math.Max(0, s.BaseScore*(1-total))
	return s
}

// matchWeight converts a match similarity into a quality-tier weight.
func matchWeight(sim float64) float64 {
	switch {
	case sim >= 0.90:
		return 1.0
	case sim >= 0.75:
		return 0.85
	case sim >= 0.60:
		return 0.60
	case sim >= 0.45:
		return 0.30
	default:
		return 0
	}
}

func weightedCoverage(matches []Match, targets int) float64 {
	if targets == 0 {
		return 0
	}
	total := 0.0
	for _, m := range matches {
		if m.Covered() {
			total += matchWeight(m.Similarity)
		}
	}
	return total / float64(targets)
}

// matchQuality averages, over the covered targets, a blend of the match
// similarity and the level compatibility of the matched pair.
func matchQuality(source, target []model.SkillRecord, matches []Match) float64 {
	total, n := 0.0, 0
	for _, m := range matches {
		if !m.Covered() || m.SourceIdx >= len(source) || m.TargetIdx >= len(target) {
			continue
		}
		levelCompat := float64(similarity.LevelCompat(
			source[m.SourceIdx].Level, target[m.TargetIdx].Level))
		total += 0.7*m.Similarity + 0.3*levelCompat
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func levelAlignment(source, target []model.SkillRecord) float64 {
	if len(source) == 0 || len(target) == 0 {
		return 0
	}
	return float64(similarity.LevelCompat(
		int(meanLevel(source)), int(meanLevel(target))))
}

func contextAlignment(source, target []model.SkillRecord) float64 {
	if len(source) == 0 || len(target) == 0 {
		return 0
	}
	srcDist := contextDistribution(source)
	tgtDist := contextDistribution(target)

	alignment := 0.0
	for i := range srcDist {
		alignment += 1 - math.Abs(srcDist[i]-tgtDist[i])
	}
	return alignment / float64(len(srcDist))
}

func contextDistribution(recs []model.SkillRecord) [3]float64 {
	var counts [3]float64
	for _, r := range recs {
		counts[r.Context.Index()]++
	}
	for i := range counts {
		counts[i] /= float64(len(recs))
	}
	return counts
}

func meanConfidence(source, target []model.SkillRecord) float64 {
	n := len(source) + len(target)
	if n == 0 {
		return 0
	}
	total := 0.0
	for _, r := range source {
		total += r.Confidence
	}
	for _, r := range target {
		total += r.Confidence
	}
	return total / float64(n)
}

func meanLevel(recs []model.SkillRecord) float64 {
	total := 0.0
	for _, r := range recs {
		total += float64(model.LevelOrDefault(r.Level))
	}
	return total / float64(len(recs))
}

func penalties(source, target []model.SkillRecord, edge *EdgeFlags) map[string]float64 {
	out := make(map[string]float64)

	if edge != nil {
		if edge.ContextImbalance > contextImbalanceTrigger {
			out["context_imbalance"] = penaltyContextImbalance
		}
		if edge.OutdatedContent {
			out["outdated_content"] = penaltyOutdatedContent
		}
		if edge.MissingPrerequisites {
			out["missing_prerequisites"] = penaltyMissingPrereqs
		}
	}

	if len(source) > 0 && len(target) > 0 {
		gap := math.Abs(meanLevel(source) - meanLevel(target))
		switch {
		case gap >= 2:
			out["major_level_gap"] = penaltyMajorLevelGap
		case gap >= 1:
			out["minor_level_gap"] = penaltyMinorLevelGap
		}

		ratio := float64(len(source)) / float64(len(target))
		if ratio > 2.5 || ratio < 0.4 {
			out["excessive_size_mismatch"] = penaltySizeMismatch
		}
	}
	return out
}
