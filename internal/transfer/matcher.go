// Package transfer scores how well one or more VET units cover a
// university course's skills and classifies the result into a credit
// transfer recommendation.
package transfer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
)

// Unit is one VET unit of competency with its extracted skills.
type Unit struct {
	Code   string              `json:"code"`
	Title  string              `json:"title,omitempty"`
	Skills []model.SkillRecord `json:"skills"`
}

// Course is one university course with its extracted skills.
type Course struct {
	Code   string              `json:"code"`
	Title  string              `json:"title,omitempty"`
	Skills []model.SkillRecord `json:"skills"`
}

// Match records the best source skill found for one target skill.
// SourceIdx is -1 when nothing cleared the coverage threshold.
type Match struct {
	TargetIdx  int     `json:"target_idx"`
	SourceIdx  int     `json:"source_idx"`
	Similarity float64 `json:"similarity"`
}

// Covered reports whether the target skill found a covering source.
func (m Match) Covered() bool { return m.SourceIdx >= 0 }

// Recommendation aliases the model tier so match reports and persisted
// run summaries share one vocabulary.
type Recommendation = model.Recommendation

const (
	RecommendFull    = model.RecommendFull
	RecommendPartial = model.RecommendPartial
	RecommendNone    = model.RecommendNone
)

// Config holds the matcher thresholds.
type Config struct {
	// CoverageThreshold: minimum similarity for a single source skill to
	// cover a target skill. Default 0.7.
	CoverageThreshold float64 `yaml:"coverage_threshold" mapstructure:"coverage_threshold"`

	// MaxCombination bounds the unit-combination search. Default 3.
	MaxCombination int `yaml:"max_combination" mapstructure:"max_combination"`

	// ShortCircuit stops the combination search once a combination
	// reaches this coverage ratio. Default 0.95.
	ShortCircuit float64 `yaml:"short_circuit" mapstructure:"short_circuit"`

	// FullThreshold / PartialThreshold split the final alignment score
	// into recommendation tiers. Defaults 0.8 and 0.5.
	FullThreshold    float64 `yaml:"full_threshold" mapstructure:"full_threshold"`
	PartialThreshold float64 `yaml:"partial_threshold" mapstructure:"partial_threshold"`

	Similarity similarity.Config `yaml:"similarity" mapstructure:"similarity"`
}

func (c Config) withDefaults() Config {
	if c.CoverageThreshold <= 0 {
		c.CoverageThreshold = 0.7
	}
	if c.MaxCombination <= 0 {
		c.MaxCombination = 3
	}
	if c.ShortCircuit <= 0 {
		c.ShortCircuit = 0.95
	}
	if c.FullThreshold <= 0 {
		c.FullThreshold = 0.8
	}
	if c.PartialThreshold <= 0 {
		c.PartialThreshold = 0.5
	}
	if c.Similarity.Weights == (similarity.Weights{}) {
		c.Similarity.Weights = similarity.DefaultWeights()
	}
	return c
}

// Judge decides coverage pairwise through an external model instead of
// the embedding path.
type Judge interface {
	Covers(ctx context.Context, source []model.SkillRecord, target model.SkillRecord) (bool, float64, error)
}

// Matcher computes unit-to-course coverage.
type Matcher struct {
	cfg    Config
	scorer *similarity.Scorer
	judge  Judge
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithJudge switches coverage decisions from embedding similarity to an
// external pairwise judge.
func WithJudge(j Judge) Option {
	return func(m *Matcher) { m.judge = j }
}

// NewMatcher builds a Matcher.
func NewMatcher(cfg Config, opts ...Option) *Matcher {
	cfg = cfg.withDefaults()
	m := &Matcher{
		cfg:    cfg,
		scorer: similarity.New(cfg.Similarity),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchReport is the full outcome for one unit set against one course.
type MatchReport struct {
	Coverage       model.CoverageResult `json:"coverage"`
	Matches        []Match              `json:"matches"`
	Score          MatchScore           `json:"score"`
	Recommendation Recommendation       `json:"recommendation"`
}

// Match computes coverage, the unified alignment score and the
// recommendation tier for one unit set against one course.
func (m *Matcher) Match(ctx context.Context, units []Unit, course Course, edge *EdgeFlags) (*MatchReport, error) {
	source := unitSkills(units)
	matches, err := m.bestMatches(ctx, source, course.Skills)
	if err != nil {
		return nil, err
	}

	coverage := m.coverageResult(units, course, matches)
	score := AlignmentScore(source, course.Skills, matches, edge)

	report := &MatchReport{
		Coverage:       coverage,
		Matches:        matches,
		Score:          score,
		Recommendation: m.Recommend(score.FinalScore),
	}
	zap.L().Info("transfer: match complete",
		zap.Strings("units", coverage.UnitCodes),
		zap.String("course", course.Code),
		zap.Float64("coverage", coverage.CoverageRatio),
		zap.Float64("score", score.FinalScore),
		zap.String("recommendation", string(report.Recommendation)),
	)
	return report, nil
}

// Coverage computes the coverage result alone, without the alignment
// breakdown.
func (m *Matcher) Coverage(ctx context.Context, units []Unit, course Course) (model.CoverageResult, error) {
	matches, err := m.bestMatches(ctx, unitSkills(units), course.Skills)
	if err != nil {
		return model.CoverageResult{}, err
	}
	return m.coverageResult(units, course, matches), nil
}

// BestCombination searches unit combinations of up to MaxCombination
// units for the best-covering subset, short-circuiting once a
// combination reaches the ShortCircuit ratio. The search is bounded,
// not optimal beyond the size cap; with no combination clearing zero
// coverage the full unit set is returned.
func (m *Matcher) BestCombination(ctx context.Context, units []Unit, course Course) (model.CoverageResult, error) {
	if len(units) == 0 {
		return m.Coverage(ctx, nil, course)
	}

	var best model.CoverageResult
	found := false
	var covErr error

	maxR := min(m.cfg.MaxCombination, len(units))
	for r := 1; r <= maxR && (!found || best.CoverageRatio < m.cfg.ShortCircuit); r++ {
		stop := false
		combinations(len(units), r, func(idx []int) bool {
			combo := make([]Unit, len(idx))
			for i, u := range idx {
				combo[i] = units[u]
			}
			cov, err := m.Coverage(ctx, combo, course)
			if err != nil {
				covErr = err
				return true
			}
			if !found || cov.CoverageRatio > best.CoverageRatio {
				best = cov
				found = true
			}
			if cov.CoverageRatio >= m.cfg.ShortCircuit {
				stop = true
				return true
			}
			return false
		})
		if covErr != nil {
			return model.CoverageResult{}, covErr
		}
		if stop {
			break
		}
	}

	if !found {
		return m.Coverage(ctx, units, course)
	}
	return best, nil
}

// Recommend maps a final alignment score to a recommendation tier.
func (m *Matcher) Recommend(score float64) Recommendation {
	return model.Recommend(score, m.cfg.FullThreshold, m.cfg.PartialThreshold)
}

// bestMatches finds, per target skill, the best covering source skill.
// A target with no source at or above the coverage threshold gets
// SourceIdx -1.
func (m *Matcher) bestMatches(ctx context.Context, source, target []model.SkillRecord) ([]Match, error) {
	matches := make([]Match, len(target))

	if m.judge != nil {
		for i, t := range target {
			covered, conf, err := m.judge.Covers(ctx, source, t)
			if err != nil {
				return nil, eris.Wrap(err, "transfer: coverage judge")
			}
			matches[i] = Match{TargetIdx: i, SourceIdx: -1}
			if covered {
				matches[i].SourceIdx = 0
				matches[i].Similarity = conf
			}
		}
		return matches, nil
	}

	if len(source) == 0 || len(target) == 0 {
		for i := range matches {
			matches[i] = Match{TargetIdx: i, SourceIdx: -1}
		}
		return matches, nil
	}

	embT := make([][]float32, len(target))
	for i, t := range target {
		embT[i] = t.Embedding
	}
	embS := make([][]float32, len(source))
	for i, s := range source {
		embS[i] = s.Embedding
	}
	sims := m.scorer.Score(embT, embS, similarity.MetadataFor(target), similarity.MetadataFor(source))

	for i := range target {
		matches[i] = Match{TargetIdx: i, SourceIdx: -1}
		for j := range source {
			sim := float64(sims[i][j])
			if sim >= m.cfg.CoverageThreshold && sim > matches[i].Similarity {
				matches[i].SourceIdx = j
				matches[i].Similarity = sim
			}
		}
	}
	return matches, nil
}

func (m *Matcher) coverageResult(units []Unit, course Course, matches []Match) model.CoverageResult {
	codes := make([]string, len(units))
	for i, u := range units {
		codes[i] = u.Code
	}

	covered := 0
	var missing []model.SkillRecord
	for i, match := range matches {
		if match.Covered() {
			covered++
		} else {
			missing = append(missing, course.Skills[i])
		}
	}

	ratio := 0.0
	if len(course.Skills) > 0 {
		ratio = float64(covered) / float64(len(course.Skills))
	}
	return model.CoverageResult{
		UnitCodes:         codes,
		CourseCode:        course.Code,
		CoveredSkills:     covered,
		TotalTargetSkills: len(course.Skills),
		CoverageRatio:     ratio,
		MissingSkills:     missing,
	}
}

func unitSkills(units []Unit) []model.SkillRecord {
	var out []model.SkillRecord
	for _, u := range units {
		out = append(out, u.Skills...)
	}
	return out
}

// combinations calls fn with every size-r index combination of [0, n).
// fn returning true stops the enumeration.
func combinations(n, r int, fn func([]int) bool) {
	idx := make([]int, r)
	var walk func(start, depth int) bool
	walk = func(start, depth int) bool {
		if depth == r {
			return fn(idx)
		}
		for i := start; i <= n-(r-depth); i++ {
			idx[depth] = i
			if walk(i+1, depth+1) {
				return true
			}
		}
		return false
	}
	walk(0, 0)
}
