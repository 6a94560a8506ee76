package facet

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
)

// basisEmbedder maps the i-th text of every batch to the i-th basis
// vector, so a skill embedding's components are exactly its cosine
// similarities to the facet values.
type basisEmbedder struct {
	dim int
}

func (e basisEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dim)
		v[i] = 1
		out[i] = v
	}
	return out, nil
}

// skillEmb builds a unit vector whose cosine to the i-th basis vector
// is sims[i]. The residual norm goes on the last dimension, which no
// facet value occupies.
func skillEmb(dim int, sims ...float64) []float32 {
	v := make([]float32, dim)
	rest := 1.0
	for i, s := range sims {
		v[i] = float32(s)
		rest -= s * s
	}
	v[dim-1] = float32(math.Sqrt(rest))
	return v
}

type fakeReranker struct {
	mu        sync.Mutex
	batchResp string
	batchErr  error
	genResp   string

	batchCalls int
	genCalls   int
	prompts    []string
}

func (f *fakeReranker) Generate(_ context.Context, userPrompt, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	f.prompts = append(f.prompts, userPrompt)
	return f.genResp, nil
}

func (f *fakeReranker) GenerateBatch(_ context.Context, userPrompts []string, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]string, len(userPrompts))
	for i := range out {
		out[i] = f.batchResp
	}
	return out, nil
}

func natureCatalog(multiValue bool) *Catalog {
	return &Catalog{Facets: []Facet{{
		ID:          "NAT",
		Name:        "Skill Nature",
		Description: "Classifies the fundamental type of competency",
		MultiValue:  multiValue,
		Values: []Value{
			{Code: "NAT.TEC", Name: "Technical", Keywords: []string{"weld", "machine"}},
			{Code: "NAT.COG", Name: "Cognitive", Keywords: []string{"analyse", "evaluate"}},
			{Code: "NAT.SOC", Name: "Social", Keywords: []string{"communicate", "team"}},
		},
	}}}
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

func masterWithEmb(id string, emb []float32) model.MasterSkillRecord {
	return model.MasterSkillRecord{SkillRecord: model.SkillRecord{
		ID:        id,
		Name:      "Skill " + id,
		Embedding: emb,
	}}
}

func TestAssign_DirectEmbeddingSkipsLLM(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{}
	a := NewAssigner(Config{}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.95, 0.20, 0.15)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", got.ValueCode)
	assert.Equal(t, "Technical", got.ValueName)
	assert.Equal(t, model.MethodEmbedding, got.Method)
	assert.InDelta(t, 0.95, got.Confidence, 1e-3)

	assert.Zero(t, reranker.batchCalls)
	assert.Zero(t, reranker.genCalls)
}

func TestAssign_LowConfidenceWithoutCloseRunnerUp(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{}
	a := NewAssigner(Config{}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	// Only one candidate clears the re-rank floor, so there is nothing
	// for an LLM to arbitrate.
	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.10, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", got.ValueCode)
	assert.Equal(t, model.MethodEmbeddingLowConf, got.Method)
	assert.InDelta(t, 0.28, got.Confidence, 1e-3)
	assert.Zero(t, reranker.batchCalls)
}

func TestAssign_RerankPicksLLMChoice(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{batchResp: `{"choice": 2, "confidence": 0.8}`}
	a := NewAssigner(Config{}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.27, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.COG", got.ValueCode)
	assert.Equal(t, model.MethodLLMRerank, got.Method)
	assert.InDelta(t, (0.8+0.27)/2, got.Confidence, 1e-3)

	assert.Equal(t, 1, reranker.batchCalls)
	assert.Zero(t, reranker.genCalls)
}

func TestAssign_RerankRetryRecovers(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{
		batchResp: "I think the answer is probably the first one.",
		genResp:   `{"choice": 1, "confidence": 0.9}`,
	}
	a := NewAssigner(Config{Retry: fastRetry(3)}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.27, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", got.ValueCode)
	assert.Equal(t, model.MethodLLMRerank, got.Method)
	assert.InDelta(t, (0.9+0.28)/2, got.Confidence, 1e-3)
	assert.Equal(t, 1, reranker.genCalls)
}

func TestAssign_RerankExhaustedFallsBackToEmbedding(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{
		batchResp: "no json here",
		genResp:   "still no json",
	}
	a := NewAssigner(Config{Retry: fastRetry(2)}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.27, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", got.ValueCode)
	assert.Equal(t, model.MethodEmbeddingFallback, got.Method)
	assert.InDelta(t, 0.28, got.Confidence, 1e-3)
	assert.Equal(t, 2, reranker.genCalls)
}

func TestAssign_BatchFailureDegradesWholeBatch(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{batchErr: fmt.Errorf("upstream down")}
	a := NewAssigner(Config{}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.27, 0.05)),
		masterWithEmb("b", skillEmb(4, 0.26, 0.29, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	assert.Equal(t, model.MethodEmbeddingFallback, masters[0].Facets["NAT"].Method)
	assert.Equal(t, "NAT.TEC", masters[0].Facets["NAT"].ValueCode)
	assert.Equal(t, model.MethodEmbeddingFallback, masters[1].Facets["NAT"].Method)
	assert.Equal(t, "NAT.COG", masters[1].Facets["NAT"].ValueCode)
	assert.Zero(t, reranker.genCalls)
}

func TestAssign_OutOfRangeChoiceTreatedAsUnparseable(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{
		batchResp: `{"choice": 9, "confidence": 0.8}`,
		genResp:   `{"choice": 2, "confidence": 0.6}`,
	}
	a := NewAssigner(Config{Retry: fastRetry(3)}, natureCatalog(false), basisEmbedder{dim: 4}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.28, 0.27, 0.05)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.COG", got.ValueCode)
	assert.Equal(t, model.MethodLLMRerank, got.Method)
}

func TestAssign_MultiValueKeepsCloseCandidates(t *testing.T) {
	t.Parallel()

	a := NewAssigner(Config{}, natureCatalog(true), basisEmbedder{dim: 4}, nil)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(4, 0.50, 0.40, 0.10)),
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	got := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", got.ValueCode)
	assert.Equal(t, model.MethodEmbedding, got.Method)
	assert.Equal(t, []string{"NAT.TEC", "NAT.COG"}, got.Values)
}

func TestAssign_LevelDirectMapping(t *testing.T) {
	t.Parallel()

	values := make([]Value, 7)
	names := []string{"FOLLOW", "ASSIST", "APPLY", "ENABLE", "ENSURE ADVISE", "INITIATE INFLUENCE", "SET STRATEGY"}
	for i := range values {
		values[i] = Value{Code: fmt.Sprintf("LVL.%d", i+1), Name: names[i], Level: i + 1}
	}
	cat := &Catalog{Facets: []Facet{{ID: "LVL", Name: "Proficiency Level", Values: values}}}

	a := NewAssigner(Config{}, cat, nil, nil)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{ID: "a", Level: 4}},
		{SkillRecord: model.SkillRecord{ID: "b", Level: model.LevelUnknown}},
		{SkillRecord: model.SkillRecord{ID: "c", Level: 9}},
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	tests := []struct {
		idx      int
		wantCode string
		wantName string
	}{
		{0, "LVL.4", "ENABLE"},
		{1, "LVL.3", "APPLY"},
		{2, "LVL.3", "APPLY"},
	}
	for _, tt := range tests {
		got := masters[tt.idx].Facets["LVL"]
		assert.Equal(t, tt.wantCode, got.ValueCode)
		assert.Equal(t, tt.wantName, got.ValueName)
		assert.Equal(t, 1.0, got.Confidence)
		assert.Equal(t, model.MethodDirectMapping, got.Method)
	}
}

func TestAssign_KeywordFallbackWithoutEmbedder(t *testing.T) {
	t.Parallel()

	a := NewAssigner(Config{}, natureCatalog(false), nil, nil)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Metal fabrication",
			Description: "Weld and machine steel components to drawing",
		}},
		{SkillRecord: model.SkillRecord{
			ID:          "b",
			Name:        "Flower arranging",
			Description: "Arrange cut flowers for display",
		}},
	}
	require.NoError(t, a.Assign(context.Background(), masters))

	hit := masters[0].Facets["NAT"]
	assert.Equal(t, "NAT.TEC", hit.ValueCode)
	assert.Equal(t, model.MethodFallback, hit.Method)
	assert.InDelta(t, 0.6, hit.Confidence, 1e-9)

	miss := masters[1].Facets["NAT"]
	assert.Equal(t, model.MethodFallback, miss.Method)
	assert.Zero(t, miss.Confidence)
}

func TestParseChoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		n          int
		wantChoice int
		wantConf   float64
		wantErr    bool
	}{
		{name: "plain", raw: `{"choice": 2, "confidence": 0.85}`, n: 3, wantChoice: 2, wantConf: 0.85},
		{name: "fenced", raw: "```json\n{\"choice\": 1, \"confidence\": 0.5}\n```", n: 3, wantChoice: 1, wantConf: 0.5},
		{name: "missing confidence defaults", raw: `{"choice": 3}`, n: 3, wantChoice: 3, wantConf: 0.7},
		{name: "zero choice", raw: `{"choice": 0, "confidence": 0.9}`, n: 3, wantErr: true},
		{name: "choice beyond candidates", raw: `{"choice": 4, "confidence": 0.9}`, n: 3, wantErr: true},
		{name: "prose only", raw: "the second one", n: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			choice, conf, err := parseChoice(tt.raw, tt.n)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChoice, choice)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
		})
	}
}

func TestFacetUserPrompt(t *testing.T) {
	t.Parallel()

	facet := natureCatalog(false).Facets[0]
	rec := model.SkillRecord{Name: "TIG welding", Description: "Join thin-wall stainless"}
	prompt := facetUserPrompt(facet, rec, []candidate{
		{value: facet.Values[0], similarity: 0.3},
		{value: facet.Values[1], similarity: 0.28},
	})

	assert.Contains(t, prompt, "SKILL: TIG welding")
	assert.Contains(t, prompt, "1. Technical")
	assert.Contains(t, prompt, "2. Cognitive")
	assert.Contains(t, prompt, `{"choice": <number>, "confidence": <0.0-1.0>}`)
}
