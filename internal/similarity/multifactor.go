package similarity

import (
	"math"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

// Weights blends the three scoring factors. They are normalized to sum
// to 1 at construction, so callers can supply any positive mix.
type Weights struct {
	Semantic float64 `yaml:"semantic" mapstructure:"semantic"`
	Level    float64 `yaml:"level" mapstructure:"level"`
	Context  float64 `yaml:"context" mapstructure:"context"`
}

// DefaultWeights returns the standard 0.6/0.25/0.15 blend.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Level: 0.25, Context: 0.15}
}

func (w Weights) normalized() Weights {
	total := w.Semantic + w.Level + w.Context
	if total <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Semantic: w.Semantic / total,
		Level:    w.Level / total,
		Context:  w.Context / total,
	}
}

// Metadata carries the per-record level and context columns needed for
// multi-factor blending. A nil Metadata on either side of a scoring
// call degrades that call to pure semantic similarity.
type Metadata struct {
	Levels   []int
	Contexts []model.Context
}

// MetadataFor extracts scoring metadata from a record slice, preserving
// order.
func MetadataFor(recs []model.SkillRecord) *Metadata {
	m := &Metadata{
		Levels:   make([]int, len(recs)),
		Contexts: make([]model.Context, len(recs)),
	}
	for i, r := range recs {
		m.Levels[i] = r.Level
		m.Contexts[i] = r.Context
	}
	return m
}

// Slice returns the metadata rows in [lo, hi).
func (m *Metadata) Slice(lo, hi int) *Metadata {
	if m == nil {
		return nil
	}
	return &Metadata{Levels: m.Levels[lo:hi], Contexts: m.Contexts[lo:hi]}
}

// Select returns the metadata rows at the given indices.
func (m *Metadata) Select(indices []int) *Metadata {
	if m == nil {
		return nil
	}
	out := &Metadata{
		Levels:   make([]int, len(indices)),
		Contexts: make([]model.Context, len(indices)),
	}
	for i, idx := range indices {
		out.Levels[i] = m.Levels[idx]
		out.Contexts[i] = m.Contexts[idx]
	}
	return out
}

// Scorer computes multi-factor similarity matrices. The zero value is
// not usable; construct with New.
type Scorer struct {
	weights   Weights
	blockSize int
}

// Config configures a Scorer.
type Config struct {
	Weights Weights `yaml:"weights" mapstructure:"weights"`

	// BlockSize bounds the tile edge used by blocked computation.
	// Default 1000.
	BlockSize int `yaml:"block_size" mapstructure:"block_size"`
}

// New builds a Scorer with normalized weights.
func New(cfg Config) *Scorer {
	bs := cfg.BlockSize
	if bs <= 0 {
		bs = 1000
	}
	return &Scorer{weights: cfg.Weights.normalized(), blockSize: bs}
}

// Weights reports the normalized weights in effect.
func (s *Scorer) Weights() Weights { return s.weights }

// BlockSize reports the tile edge used for blocked computation.
func (s *Scorer) BlockSize() int { return s.blockSize }

// Score returns the full pairwise similarity matrix between embA rows
// and embB rows. With metadata on both sides the semantic score is
// blended with level and context compatibility; otherwise the result is
// plain cosine similarity.
func (s *Scorer) Score(embA, embB [][]float32, metaA, metaB *Metadata) [][]float32 {
	sem := Cosine(embA, embB)
	if metaA == nil || metaB == nil {
		return sem
	}

	levels := LevelCompatMatrix(metaA.Levels, metaB.Levels)
	contexts := ContextCompatMatrix(metaA.Contexts, metaB.Contexts)

	ws, wl, wc := float32(s.weights.Semantic), float32(s.weights.Level), float32(s.weights.Context)
	for i := range sem {
		srow, lrow, crow := sem[i], levels[i], contexts[i]
		for j := range srow {
			srow[j] = srow[j]*ws + lrow[j]*wl + crow[j]*wc
		}
	}
	return sem
}

// ScoreBlocked computes the same matrix as Score but in blockSize-sized
// tiles so the peak working set stays bounded for corpora too large to
// score as one dense matrix. Tiles cover the output exactly once.
func (s *Scorer) ScoreBlocked(embA, embB [][]float32, metaA, metaB *Metadata) [][]float32 {
	n, m := len(embA), len(embB)
	out := allocMatrix(n, m)

	for i := 0; i < n; i += s.blockSize {
		ei := min(i+s.blockSize, n)
		for j := 0; j < m; j += s.blockSize {
			ej := min(j+s.blockSize, m)
			block := s.Score(embA[i:ei], embB[j:ej], metaA.Slice(i, ei), metaB.Slice(j, ej))
			copyBlock(out, block, i, j)
		}
	}
	return out
}

// ScoreSelf computes the symmetric self-similarity matrix of one
// embedding set, mirroring each off-diagonal tile instead of
// recomputing its transpose.
func (s *Scorer) ScoreSelf(emb [][]float32, meta *Metadata) [][]float32 {
	n := len(emb)
	out := allocMatrix(n, n)

	for i := 0; i < n; i += s.blockSize {
		ei := min(i+s.blockSize, n)
		for j := i; j < n; j += s.blockSize {
			ej := min(j+s.blockSize, n)
			block := s.Score(emb[i:ei], emb[j:ej], meta.Slice(i, ei), meta.Slice(j, ej))
			copyBlock(out, block, i, j)
			if i != j {
				mirrorBlock(out, block, i, j)
			}
		}
	}
	return out
}

// Cosine returns the pairwise cosine similarity between the rows of a
// and the rows of b. Zero vectors score 0 against everything.
func Cosine(a, b [][]float32) [][]float32 {
	normsA := rowNorms(a)
	normsB := rowNorms(b)

	out := make([][]float32, len(a))
	for i, va := range a {
		row := make([]float32, len(b))
		if normsA[i] != 0 {
			for j, vb := range b {
				if normsB[j] == 0 {
					continue
				}
				row[j] = dot(va, vb) / (normsA[i] * normsB[j])
			}
		}
		out[i] = row
	}
	return out
}

func rowNorms(m [][]float32) []float32 {
	norms := make([]float32, len(m))
	for i, row := range m {
		var sum float64
		for _, v := range row {
			sum += float64(v) * float64(v)
		}
		norms[i] = float32(math.Sqrt(sum))
	}
	return norms
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func allocMatrix(n, m int) [][]float32 {
	out := make([][]float32, n)
	backing := make([]float32, n*m)
	for i := range out {
		out[i] = backing[i*m : (i+1)*m]
	}
	return out
}

func copyBlock(dst, block [][]float32, rowOff, colOff int) {
	for bi, row := range block {
		copy(dst[rowOff+bi][colOff:colOff+len(row)], row)
	}
}

func mirrorBlock(dst, block [][]float32, rowOff, colOff int) {
	for bi, row := range block {
		for bj, v := range row {
			dst[colOff+bj][rowOff+bi] = v
		}
	}
}
