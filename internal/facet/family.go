package facet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
	"github.com/pathways-group/skillmap-cli/pkg/embedder"
)

// FamilyConfig holds the thresholds for skill-family assignment. Family
// matching is stricter than facet matching: definitions are longer and
// closer together, so the direct-assignment bar sits higher.
type FamilyConfig struct {
	// EmbeddingThreshold for direct assignment. An LLM re-rank answer
	// below it is also discarded. Default 0.5.
	EmbeddingThreshold float64 `yaml:"embedding_threshold" mapstructure:"embedding_threshold"`

	// RerankFloor: candidates below it never reach the LLM. Default 0.35.
	RerankFloor float64 `yaml:"rerank_floor" mapstructure:"rerank_floor"`

	// RerankTopK bounds the candidate families per skill. Default 5.
	RerankTopK int `yaml:"rerank_top_k" mapstructure:"rerank_top_k"`

	// KeywordThreshold is the minimum keyword-hit count for the keyword
	// fallback to assign. Default 2.
	KeywordThreshold int `yaml:"keyword_threshold" mapstructure:"keyword_threshold"`

	// BatchSize is the number of re-ranking prompts per external call
	// batch. Default 50.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	Retry resilience.RetryConfig `yaml:"-" mapstructure:"-"`
}

func (c FamilyConfig) withDefaults() FamilyConfig {
	if c.EmbeddingThreshold <= 0 {
		c.EmbeddingThreshold = 0.5
	}
	if c.RerankFloor <= 0 {
		c.RerankFloor = 0.35
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 5
	}
	if c.KeywordThreshold <= 0 {
		c.KeywordThreshold = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.ShouldRetry == nil {
		c.Retry.ShouldRetry = retryableResponse
	}
	return c
}

// FamilyAssignment is one skill's resolved family.
type FamilyAssignment struct {
	Key        string             `json:"family"`
	Name       string             `json:"family_name"`
	Domain     string             `json:"domain"`
	DomainName string             `json:"domain_name"`
	Confidence float64            `json:"confidence"`
	Method     model.AssignMethod `json:"method"`
}

// Assigned reports whether a family was actually resolved.
func (f FamilyAssignment) Assigned() bool { return f.Key != "" }

// categoryFamilies maps raw extraction categories to a default family
// when every other path comes up empty.
var categoryFamilies = map[string]string{
	"technical":        "engineering_mechanical",
	"cognitive":        "business_administration",
	"interpersonal":    "customer_service",
	"domain_knowledge": "business_administration",
}

// FamilyAssigner resolves each unique skill to a predefined family.
type FamilyAssigner struct {
	cfg      FamilyConfig
	catalog  *Catalog
	embedder Embedder
	reranker Reranker

	familyEmb [][]float32
}

// NewFamilyAssigner creates a family assigner. reranker and embedder
// may each be nil; assignment degrades to keyword matching.
func NewFamilyAssigner(cfg FamilyConfig, catalog *Catalog, emb Embedder, reranker Reranker) *FamilyAssigner {
	return &FamilyAssigner{
		cfg:      cfg.withDefaults(),
		catalog:  catalog,
		embedder: emb,
		reranker: reranker,
	}
}

type familyCandidate struct {
	family     Family
	similarity float64
}

type familyRerankItem struct {
	masterIdx  int
	candidates []familyCandidate
}

// Assign resolves a family per master record, returned as a slice
// parallel to masters.
func (fa *FamilyAssigner) Assign(ctx context.Context, masters []model.MasterSkillRecord) ([]FamilyAssignment, error) {
	if err := fa.prepare(ctx); err != nil {
		return nil, err
	}

	out := make([]FamilyAssignment, len(masters))
	var pending []familyRerankItem

	for i := range masters {
		emb := masters[i].Embedding
		if fa.embedder == nil || emb == nil {
			out[i] = fa.keywordFamily(masters[i].SkillRecord)
			continue
		}

		top := fa.topFamilies(emb)
		best := top[0]

		if fa.reranker != nil && len(top) > 1 &&
			best.similarity < fa.cfg.EmbeddingThreshold && best.similarity >= fa.cfg.RerankFloor {
			var close []familyCandidate
			for _, c := range top {
				if c.similarity >= fa.cfg.RerankFloor {
					close = append(close, c)
				}
			}
			if len(close) > 1 {
				pending = append(pending, familyRerankItem{masterIdx: i, candidates: close})
				continue
			}
		}

		if best.similarity >= fa.cfg.EmbeddingThreshold {
			out[i] = fa.assignment(best.family, best.similarity, model.MethodEmbedding)
			continue
		}
		out[i] = fa.keywordFamily(masters[i].SkillRecord)
	}

	fa.rerank(ctx, masters, pending, out)

	zap.L().Info("facet: family assignment complete",
		zap.Int("skills", len(masters)),
		zap.Int("families", len(fa.catalog.Families)),
	)
	return out, nil
}

func (fa *FamilyAssigner) prepare(ctx context.Context) error {
	if fa.familyEmb != nil || fa.embedder == nil {
		return nil
	}
	texts := make([]string, len(fa.catalog.Families))
	for i, fam := range fa.catalog.Families {
		texts[i] = fam.EmbeddingText()
	}
	emb, err := fa.embedder.Encode(ctx, texts)
	if err != nil {
		return eris.Wrap(err, "facet: embed family definitions")
	}
	fa.familyEmb = emb
	return nil
}

func (fa *FamilyAssigner) topFamilies(emb []float32) []familyCandidate {
	all := make([]familyCandidate, len(fa.catalog.Families))
	for i, fam := range fa.catalog.Families {
		all[i] = familyCandidate{family: fam, similarity: embedder.Similarity(emb, fa.familyEmb[i])}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].similarity > all[b].similarity
	})
	k := min(fa.cfg.RerankTopK, len(all))
	return all[:k]
}

func (fa *FamilyAssigner) rerank(ctx context.Context, masters []model.MasterSkillRecord, pending []familyRerankItem, out []FamilyAssignment) {
	if len(pending) == 0 {
		return
	}
	systemPrompt := familySystemPrompt()

	for start := 0; start < len(pending); start += fa.cfg.BatchSize {
		end := min(start+fa.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		prompts := make([]string, len(batch))
		for i, item := range batch {
			prompts[i] = familyUserPrompt(masters[item.masterIdx].SkillRecord, item.candidates)
		}

		responses, err := fa.reranker.GenerateBatch(ctx, prompts, systemPrompt)
		if err != nil {
			zap.L().Warn("facet: family rerank batch failed, using keyword fallback",
				zap.Int("items", len(batch)),
				zap.Error(err),
			)
			for _, item := range batch {
				out[item.masterIdx] = fa.keywordFamily(masters[item.masterIdx].SkillRecord)
			}
			continue
		}

		for i, item := range batch {
			out[item.masterIdx] = fa.applyRerank(ctx, masters[item.masterIdx].SkillRecord, item, systemPrompt, prompts[i], responses[i])
		}
	}
}

func (fa *FamilyAssigner) applyRerank(ctx context.Context, rec model.SkillRecord, item familyRerankItem, systemPrompt, userPrompt, response string) FamilyAssignment {
	choice, llmConf, err := parseChoice(response, len(item.candidates))
	if err != nil {
		result, retryErr := resilience.DoVal(ctx, fa.cfg.Retry, func(ctx context.Context) (choiceResult, error) {
			raw, genErr := fa.reranker.Generate(ctx, userPrompt, systemPrompt)
			if genErr != nil {
				return choiceResult{}, genErr
			}
			c, cf, parseErr := parseChoice(raw, len(item.candidates))
			return choiceResult{choice: c, conf: cf}, parseErr
		})
		if retryErr != nil {
			return fa.keywordFamily(rec)
		}
		choice, llmConf = result.choice, result.conf
	}

	// A re-rank answer the model itself is unsure about is worth less
	// than the keyword heuristic.
	if llmConf < fa.cfg.EmbeddingThreshold {
		return fa.keywordFamily(rec)
	}

	selected := item.candidates[choice-1]
	assignment := fa.assignment(selected.family, (llmConf+selected.similarity)/2, model.MethodLLMRerank)
	return assignment
}

// keywordFamily is the degraded path: keyword-hit counting, then the
// per-category default, then unassigned.
func (fa *FamilyAssigner) keywordFamily(rec model.SkillRecord) FamilyAssignment {
	text := strings.ToLower(rec.CombinedText())

	var best *Family
	bestHits := 0
	for i := range fa.catalog.Families {
		fam := &fa.catalog.Families[i]
		hits := 0
		for _, kw := range fam.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = fam, hits
		}
	}
	if best != nil && bestHits >= fa.cfg.KeywordThreshold {
		conf := min(0.9, 0.4+float64(bestHits)*0.1)
		return fa.assignment(*best, conf, model.MethodFallback)
	}

	if key, ok := categoryFamilies[strings.ToLower(rec.Category)]; ok {
		for _, fam := range fa.catalog.Families {
			if fam.Key == key {
				return fa.assignment(fam, 0.3, model.MethodFallback)
			}
		}
	}
	return FamilyAssignment{Method: model.MethodFallback}
}

func (fa *FamilyAssigner) assignment(fam Family, confidence float64, method model.AssignMethod) FamilyAssignment {
	return FamilyAssignment{
		Key:        fam.Key,
		Name:       fam.Name,
		Domain:     fam.Domain,
		DomainName: fa.catalog.DomainName(fam.Domain),
		Confidence: confidence,
		Method:     method,
	}
}

func familySystemPrompt() string {
	return `You are an expert in vocational skills analysis.
Your task is to select the BEST matching skill family for each skill.
Consider the skill's core functionality, how it is applied, and the family definitions.
You MUST respond with valid JSON only. No additional text, explanation, or markdown.`
}

func familyUserPrompt(rec model.SkillRecord, candidates []familyCandidate) string {
	var sb strings.Builder
	sb.WriteString("Select the BEST skill family for this skill:\n\n")
	fmt.Fprintf(&sb, "SKILL: %s\nDESCRIPTION: %s\n\n", rec.Name, truncate(rec.Description, 300))
	sb.WriteString("CANDIDATE FAMILIES:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, c.family.Name, c.family.Description)
		if len(c.family.Keywords) > 0 {
			kw := c.family.Keywords
			if len(kw) > 5 {
				kw = kw[:5]
			}
			fmt.Fprintf(&sb, "   Keywords: %s\n", strings.Join(kw, ", "))
		}
	}
	fmt.Fprintf(&sb, "\nWhich family (1-%d) is the BEST match? Respond with JSON only:\n", len(candidates))
	sb.WriteString(`{"choice": <number>, "confidence": <0.0-1.0>}`)
	return sb.String()
}
