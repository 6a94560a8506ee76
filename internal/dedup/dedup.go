// Package dedup groups skill records that denote the same skill and
// merges each group into a single master record.
//
// Grouping is single-pass greedy in input row order: the first record
// to claim a neighbor wins, and consumed records cannot seed or join a
// later group. The outcome is order-dependent by design; callers supply
// a deterministic record order (original row order) to keep runs
// reproducible.
package dedup

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
	"github.com/pathways-group/skillmap-cli/internal/vecindex"
)

// Config holds the thresholds that drive duplicate detection.
type Config struct {
	// SimilarityFloor is the permissive retrieval floor passed to the
	// vector index; pairs below it are never considered. Default 0.5.
	SimilarityFloor float64 `yaml:"similarity_floor" mapstructure:"similarity_floor"`

	// DirectThreshold and above merges unconditionally. Default 0.9.
	DirectThreshold float64 `yaml:"direct_threshold" mapstructure:"direct_threshold"`

	// PartialThreshold and above merges only when the level gate
	// passes. Default 0.8.
	PartialThreshold float64 `yaml:"partial_threshold" mapstructure:"partial_threshold"`

	// TopK bounds the neighbors retrieved per record. Default 20.
	TopK int `yaml:"top_k" mapstructure:"top_k"`

	// MaxLevelGap gates partial matches: proficiency levels may differ
	// by at most this much. Default 1.
	MaxLevelGap int `yaml:"max_level_gap" mapstructure:"max_level_gap"`

	Index vecindex.Options `yaml:"index" mapstructure:"index"`
}

func (c Config) withDefaults() Config {
	if c.SimilarityFloor <= 0 {
		c.SimilarityFloor = 0.5
	}
	if c.DirectThreshold <= 0 {
		c.DirectThreshold = 0.9
	}
	if c.PartialThreshold <= 0 {
		c.PartialThreshold = 0.8
	}
	if c.TopK <= 0 {
		c.TopK = 20
	}
	if c.MaxLevelGap <= 0 {
		c.MaxLevelGap = 1
	}
	return c
}

// Deduplicator finds duplicate groups and merges them.
type Deduplicator struct {
	cfg    Config
	scorer *similarity.Scorer
}

// New creates a Deduplicator using the given multi-factor scorer.
func New(cfg Config, scorer *similarity.Scorer) *Deduplicator {
	return &Deduplicator{cfg: cfg.withDefaults(), scorer: scorer}
}

// FindGroups clusters records into duplicate groups. records[i]
// corresponds to embeddings[i]; both follow the documented processing
// order. Only groups with at least two members are returned.
func (d *Deduplicator) FindGroups(records []model.SkillRecord, embeddings [][]float32) ([]model.DuplicateGroup, error) {
	if len(records) != len(embeddings) {
		return nil, eris.Errorf("dedup: %d records but %d embeddings", len(records), len(embeddings))
	}
	if len(records) == 0 {
		return nil, nil
	}

	meta := similarity.MetadataFor(records)
	index, err := vecindex.Build(d.scorer, embeddings, meta, d.cfg.Index)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: build index")
	}

	consumed := make([]bool, len(records))
	var groups []model.DuplicateGroup

	queries := make([]int, len(records))
	for i := range queries {
		queries[i] = i
	}
	scores, neighbors := index.Query(queries, d.cfg.TopK, d.cfg.SimilarityFloor)

	for q := range records {
		if consumed[q] {
			continue
		}

		var members []int
		var classifications []model.GroupMember
		for pos, n := range neighbors[q] {
			if n == vecindex.Sentinel || n == q || consumed[n] {
				continue
			}
			score := float64(scores[q][pos])
			switch {
			case score >= d.cfg.DirectThreshold:
				members = append(members, n)
				classifications = append(classifications, model.GroupMember{
					ID: records[n].ID, MatchType: model.MatchDirect, MatchScore: score,
				})
			case score >= d.cfg.PartialThreshold:
				if !d.levelGate(records[q], records[n]) {
					continue
				}
				members = append(members, n)
				classifications = append(classifications, model.GroupMember{
					ID: records[n].ID, MatchType: model.MatchPartial, MatchScore: score,
				})
			}
		}
		if len(members) == 0 {
			continue
		}

		group := append([]int{q}, members...)
		masterPos := selectMaster(records, group)
		masterID := records[masterPos].ID

		dg := model.DuplicateGroup{MasterID: masterID}
		for i, idx := range group {
			consumed[idx] = true
			if idx == masterPos {
				continue
			}
			if idx == q {
				// The query itself lost master selection; it inherits
				// the classification of its pairing with the master.
				dg.Members = append(dg.Members, memberForQuery(records[q].ID, masterID, classifications))
				continue
			}
			dg.Members = append(dg.Members, classifications[i-1])
		}
		groups = append(groups, dg)
	}

	grouped := 0
	for _, g := range groups {
		grouped += g.Size()
	}
	zap.L().Info("dedup: grouping complete",
		zap.Int("records", len(records)),
		zap.Int("groups", len(groups)),
		zap.Int("grouped_records", grouped),
	)
	return groups, nil
}

// levelGate rejects partial matches whose proficiency levels are too
// far apart. Unknown levels pass: missing metadata is treated as
// compatible with everything rather than failing the record.
func (d *Deduplicator) levelGate(a, b model.SkillRecord) bool {
	if a.Level == model.LevelUnknown || b.Level == model.LevelUnknown {
		return true
	}
	gap := a.Level - b.Level
	if gap < 0 {
		gap = -gap
	}
	return gap <= d.cfg.MaxLevelGap
}

// memberForQuery builds the query record's own membership entry when a
// neighbor won master selection: its score against the group is the one
// recorded for that master.
func memberForQuery(queryID, masterID string, classifications []model.GroupMember) model.GroupMember {
	for _, c := range classifications {
		if c.ID == masterID {
			return model.GroupMember{ID: queryID, MatchType: c.MatchType, MatchScore: c.MatchScore}
		}
	}
	// The master was the query itself or untracked; treat as direct.
	return model.GroupMember{ID: queryID, MatchType: model.MatchDirect, MatchScore: 1.0}
}

// selectMaster scores each group member and returns the position (into
// records) of the best one. The heuristic deliberately favors
// higher-confidence, higher-level, better-documented records over a
// neutral centroid.
func selectMaster(records []model.SkillRecord, group []int) int {
	best, bestScore := group[0], -1.0
	for _, idx := range group {
		r := records[idx]
		score := r.Confidence*0.4 +
			float64(model.LevelOrDefault(r.Level))/7.0*0.3 +
			minf(float64(len(r.Description))/500.0, 1.0)*0.3
		if score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
