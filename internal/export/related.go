package export

import (
	"sort"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
)

const (
	defaultRelatedTopK      = 5
	defaultRelatedThreshold = 0.3
)

// ComputeRelated finds, per skill, the most similar other unique skills
// by semantic similarity. topK and threshold fall back to defaults when
// zero. Skills without embeddings get no related list.
func ComputeRelated(masters []model.MasterSkillRecord, topK int, threshold float64) map[string][]RelatedSkill {
	if topK <= 0 {
		topK = defaultRelatedTopK
	}
	if threshold <= 0 {
		threshold = defaultRelatedThreshold
	}

	emb := make([][]float32, len(masters))
	for i, m := range masters {
		emb[i] = m.Embedding
	}
	sims := similarity.Cosine(emb, emb)

	out := make(map[string][]RelatedSkill, len(masters))
	for i, m := range masters {
		if m.Embedding == nil {
			continue
		}
		var candidates []RelatedSkill
		for j, other := range masters {
			if j == i || other.Embedding == nil {
				continue
			}
			sim := float64(sims[i][j])
			if sim >= threshold {
				candidates = append(candidates, RelatedSkill{
					SkillID:    other.ID,
					SkillName:  other.Name,
					Similarity: sim,
				})
			}
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].Similarity > candidates[b].Similarity
		})
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		if len(candidates) > 0 {
			out[m.ID] = candidates
		}
	}
	return out
}
