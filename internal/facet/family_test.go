package facet

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

func familyCatalog() *Catalog {
	return &Catalog{
		Domains: []Domain{
			{Key: "trades_construction", Name: "Trades and Construction"},
			{Key: "ict_digital", Name: "ICT and Digital"},
			{Key: "business_finance", Name: "Business and Finance"},
		},
		Families: []Family{
			{
				Key:         "software_development",
				Name:        "Software Development",
				Description: "Writing and testing software",
				Domain:      "ict_digital",
				Keywords:    []string{"programming", "coding", "software"},
			},
			{
				Key:         "data_analytics",
				Name:        "Data and Analytics",
				Description: "Analysing data to inform decisions",
				Domain:      "ict_digital",
				Keywords:    []string{"data", "statistics"},
			},
			{
				Key:         "engineering_mechanical",
				Name:        "Mechanical Engineering",
				Description: "Machining, welding and fabrication",
				Domain:      "trades_construction",
				Keywords:    []string{"weld", "machine", "fabricat"},
			},
			{
				Key:         "customer_service",
				Name:        "Customer Service",
				Description: "Serving customers and clients",
				Domain:      "business_finance",
				Keywords:    []string{"customer", "client"},
			},
		},
	}
}

func TestFamilyAssign_DirectEmbedding(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{}
	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), basisEmbedder{dim: 5}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(5, 0.62, 0.20, 0.10, 0.05)),
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "software_development", got[0].Key)
	assert.Equal(t, "Software Development", got[0].Name)
	assert.Equal(t, "ict_digital", got[0].Domain)
	assert.Equal(t, "ICT and Digital", got[0].DomainName)
	assert.Equal(t, model.MethodEmbedding, got[0].Method)
	assert.InDelta(t, 0.62, got[0].Confidence, 1e-3)
	assert.True(t, got[0].Assigned())
	assert.Zero(t, reranker.batchCalls)
}

func TestFamilyAssign_RerankResolvesCloseCall(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{batchResp: `{"choice": 2, "confidence": 0.8}`}
	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), basisEmbedder{dim: 5}, reranker)

	masters := []model.MasterSkillRecord{
		masterWithEmb("a", skillEmb(5, 0.45, 0.40, 0.10, 0.05)),
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "data_analytics", got[0].Key)
	assert.Equal(t, model.MethodLLMRerank, got[0].Method)
	assert.InDelta(t, (0.8+0.40)/2, got[0].Confidence, 1e-3)
	assert.Equal(t, 1, reranker.batchCalls)
}

func TestFamilyAssign_UnsureLLMFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{batchResp: `{"choice": 1, "confidence": 0.3}`}
	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), basisEmbedder{dim: 5}, reranker)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Metal fabrication",
			Description: "Weld and machine steel components",
			Embedding:   skillEmb(5, 0.45, 0.40, 0.10, 0.05),
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "engineering_mechanical", got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
}

func TestFamilyAssign_RerankExhaustedFallsBackToKeywords(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{
		batchResp: "no json",
		genResp:   "still no json",
	}
	fa := NewFamilyAssigner(FamilyConfig{Retry: fastRetry(2)}, familyCatalog(), basisEmbedder{dim: 5}, reranker)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Customer complaints",
			Description: "Resolve customer and client complaints",
			Embedding:   skillEmb(5, 0.45, 0.40, 0.10, 0.05),
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "customer_service", got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
	assert.Equal(t, 2, reranker.genCalls)
}

func TestFamilyAssign_KeywordMatch(t *testing.T) {
	t.Parallel()

	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), nil, nil)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Fabrication basics",
			Description: "Weld, machine and fabricate light structures",
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "engineering_mechanical", got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
}

func TestFamilyAssign_CategoryDefault(t *testing.T) {
	t.Parallel()

	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), nil, nil)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Hydraulic systems maintenance",
			Description: "Maintain industrial hydraulic circuits",
			Category:    "technical",
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "engineering_mechanical", got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
	assert.InDelta(t, 0.3, got[0].Confidence, 1e-9)
}

func TestFamilyAssign_Unassigned(t *testing.T) {
	t.Parallel()

	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), nil, nil)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Beekeeping",
			Description: "Maintain apiary hives",
			Category:    "niche",
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.False(t, got[0].Assigned())
	assert.Empty(t, got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
}

func TestFamilyAssign_BatchFailureDegradesBatch(t *testing.T) {
	t.Parallel()

	reranker := &fakeReranker{batchErr: fmt.Errorf("upstream down")}
	fa := NewFamilyAssigner(FamilyConfig{}, familyCatalog(), basisEmbedder{dim: 5}, reranker)

	masters := []model.MasterSkillRecord{
		{SkillRecord: model.SkillRecord{
			ID:          "a",
			Name:        "Programming fundamentals",
			Description: "Write software and practice coding",
			Embedding:   skillEmb(5, 0.45, 0.40, 0.10, 0.05),
		}},
	}
	got, err := fa.Assign(context.Background(), masters)
	require.NoError(t, err)

	assert.Equal(t, "software_development", got[0].Key)
	assert.Equal(t, model.MethodFallback, got[0].Method)
	assert.Zero(t, reranker.genCalls)
}

func TestFamilyUserPrompt(t *testing.T) {
	t.Parallel()

	cat := familyCatalog()
	rec := model.SkillRecord{Name: "Data wrangling", Description: "Clean tabular data"}
	prompt := familyUserPrompt(rec, []familyCandidate{
		{family: cat.Families[0], similarity: 0.45},
		{family: cat.Families[1], similarity: 0.40},
	})

	assert.Contains(t, prompt, "SKILL: Data wrangling")
	assert.Contains(t, prompt, "1. Software Development")
	assert.Contains(t, prompt, "2. Data and Analytics")
	assert.Contains(t, prompt, "Keywords: programming, coding, software")
	assert.Contains(t, prompt, `{"choice": <number>, "confidence": <0.0-1.0>}`)
}
