package similarity

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

func unitVec(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func TestCosine_Identity(t *testing.T) {
	t.Parallel()
	a := [][]float32{unitVec(0), unitVec(1.2)}
	m := Cosine(a, a)
	assert.InDelta(t, 1.0, float64(m[0][0]), 1e-6)
	assert.InDelta(t, 1.0, float64(m[1][1]), 1e-6)
	assert.InDelta(t, math.Cos(1.2), float64(m[0][1]), 1e-6)
}

func TestCosine_ZeroVector(t *testing.T) {
	t.Parallel()
	m := Cosine([][]float32{{0, 0}}, [][]float32{{1, 0}})
	assert.Equal(t, float32(0), m[0][0])
}

func TestScore_NoMetadataEqualsSemantic(t *testing.T) {
	t.Parallel()
	s := New(Config{Weights: Weights{Semantic: 2, Level: 1, Context: 1}})
	a := [][]float32{unitVec(0), unitVec(0.5)}
	b := [][]float32{unitVec(0.3), unitVec(2.0)}

	got := s.Score(a, b, nil, nil)
	want := Cosine(a, b)
	assert.Equal(t, want, got)
}

func TestScore_WeightsNormalized(t *testing.T) {
	t.Parallel()
	s := New(Config{Weights: Weights{Semantic: 6, Level: 2.5, Context: 1.5}})
	w := s.Weights()
	assert.InDelta(t, 1.0, w.Semantic+w.Level+w.Context, 1e-9)
	assert.InDelta(t, 0.6, w.Semantic, 1e-9)
}

func TestScore_BlendsFactors(t *testing.T) {
	t.Parallel()
	s := New(Config{Weights: DefaultWeights()})
	a := [][]float32{unitVec(0)}
	meta := &Metadata{Levels: []int{3}, Contexts: []model.Context{model.ContextPractical}}
	metaB := &Metadata{Levels: []int{4}, Contexts: []model.Context{model.ContextTheoretical}}

	got := s.Score(a, a, meta, metaB)
	// semantic 1.0, level compat(3,4)=0.8, context compat(p,t)=0.3
	want := 1.0*0.6 + 0.8*0.25 + 0.3*0.15
	assert.InDelta(t, want, float64(got[0][0]), 1e-6)
}

func randomEmbeddings(t *testing.T, n, dim int, seed int64) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func randomMetadata(n int, seed int64) *Metadata {
	rng := rand.New(rand.NewSource(seed))
	contexts := []model.Context{model.ContextPractical, model.ContextTheoretical, model.ContextHybrid}
	m := &Metadata{Levels: make([]int, n), Contexts: make([]model.Context, n)}
	for i := 0; i < n; i++ {
		m.Levels[i] = 1 + rng.Intn(7)
		m.Contexts[i] = contexts[rng.Intn(len(contexts))]
	}
	return m
}

func TestScoreBlocked_MatchesDense(t *testing.T) {
	t.Parallel()
	a := randomEmbeddings(t, 23, 8, 1)
	b := randomEmbeddings(t, 17, 8, 2)
	metaA := randomMetadata(23, 3)
	metaB := randomMetadata(17, 4)

	dense := New(Config{Weights: DefaultWeights()})
	blocked := New(Config{Weights: DefaultWeights(), BlockSize: 5})

	want := dense.Score(a, b, metaA, metaB)
	got := blocked.ScoreBlocked(a, b, metaA, metaB)

	require.Equal(t, len(want), len(got))
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, float64(want[i][j]), float64(got[i][j]), 1e-6)
		}
	}
}

func TestScoreSelf_SymmetricAndMatchesDense(t *testing.T) {
	t.Parallel()
	emb := randomEmbeddings(t, 19, 6, 7)
	meta := randomMetadata(19, 8)

	s := New(Config{Weights: DefaultWeights(), BlockSize: 4})
	got := s.ScoreSelf(emb, meta)
	want := New(Config{Weights: DefaultWeights()}).Score(emb, emb, meta, meta)

	for i := range got {
		for j := range got[i] {
			assert.InDelta(t, float64(want[i][j]), float64(got[i][j]), 1e-6)
			assert.Equal(t, got[i][j], got[j][i], "mirrored blocks must match exactly")
		}
	}
}

func TestMetadataSelect(t *testing.T) {
	t.Parallel()
	m := &Metadata{
		Levels:   []int{1, 2, 3},
		Contexts: []model.Context{model.ContextPractical, model.ContextHybrid, model.ContextTheoretical},
	}
	sel := m.Select([]int{2, 0})
	assert.Equal(t, []int{3, 1}, sel.Levels)
	assert.Equal(t, []model.Context{model.ContextTheoretical, model.ContextPractical}, sel.Contexts)

	var nilMeta *Metadata
	assert.Nil(t, nilMeta.Select([]int{0}))
}
