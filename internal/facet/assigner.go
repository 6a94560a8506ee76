package facet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
	"github.com/pathways-group/skillmap-cli/pkg/embedder"
	"github.com/pathways-group/skillmap-cli/pkg/genai"
)

// Embedder provides text embeddings for definition texts.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker answers classification prompts, batched under a shared
// system prompt.
type Reranker interface {
	Generate(ctx context.Context, userPrompt, systemPrompt string) (string, error)
	GenerateBatch(ctx context.Context, userPrompts []string, systemPrompt string) ([]string, error)
}

// Config holds the thresholds driving facet assignment.
type Config struct {
	// EmbeddingThreshold is the similarity above which the top
	// candidate is assigned directly. Default 0.3.
	EmbeddingThreshold float64 `yaml:"embedding_threshold" mapstructure:"embedding_threshold"`

	// RerankFloor is the minimum similarity for a candidate to enter
	// LLM re-ranking or a multi-value set. Default 0.25.
	RerankFloor float64 `yaml:"rerank_floor" mapstructure:"rerank_floor"`

	// RerankTopK bounds the candidates considered per facet. Default 3.
	RerankTopK int `yaml:"rerank_top_k" mapstructure:"rerank_top_k"`

	// MaxMultiValues caps the value set of a multi-value facet. Default 3.
	MaxMultiValues int `yaml:"max_multi_values" mapstructure:"max_multi_values"`

	// BatchSize is the number of re-ranking prompts sent per external
	// call batch. Default 50.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	Retry resilience.RetryConfig `yaml:"-" mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.EmbeddingThreshold <= 0 {
		c.EmbeddingThreshold = 0.3
	}
	if c.RerankFloor <= 0 {
		c.RerankFloor = 0.25
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 3
	}
	if c.MaxMultiValues <= 0 {
		c.MaxMultiValues = 3
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

// retryableResponse retries transient failures and unparseable model
// output; anything else is final.
func retryableResponse(err error) bool {
	return errors.Is(err, genai.ErrUnparseable) || resilience.IsTransient(err)
}

// Assigner assigns facet values to master skill records.
type Assigner struct {
	cfg      Config
	catalog  *Catalog
	embedder Embedder
	reranker Reranker

	valueEmb map[string][][]float32
}

// NewAssigner creates a facet assigner. reranker may be nil, which
// disables LLM re-ranking; embedder may be nil, which degrades every
// similarity facet to keyword matching.
func NewAssigner(cfg Config, catalog *Catalog, embedder Embedder, reranker Reranker) *Assigner {
	return &Assigner{
		cfg:      cfg.withDefaults(),
		catalog:  catalog,
		embedder: embedder,
		reranker: reranker,
	}
}

type candidate struct {
	value      Value
	similarity float64
}

type rerankItem struct {
	masterIdx  int
	candidates []candidate
}

// Assign fills the Facets map of every master record. Direct-mapping
// facets are resolved from existing fields; the rest go through
// embedding similarity with optional LLM re-ranking.
func (a *Assigner) Assign(ctx context.Context, masters []model.MasterSkillRecord) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}

	for _, facet := range a.catalog.Facets {
		if facet.ID == "LVL" {
			// Proficiency level maps 1:1 from the level field; exact
			// beats similarity search.
			a.assignLevels(masters, facet)
			continue
		}

		pending := a.assignByEmbedding(masters, facet)
		if len(pending) > 0 {
			a.rerank(ctx, masters, facet, pending)
		}
	}

	zap.L().Info("facet: assignment complete",
		zap.Int("skills", len(masters)),
		zap.Int("facets", len(a.catalog.Facets)),
	)
	return nil
}

func (a *Assigner) prepare(ctx context.Context) error {
	if a.valueEmb != nil || a.embedder == nil {
		return nil
	}
	a.valueEmb = make(map[string][][]float32, len(a.catalog.Facets))
	for _, f := range a.catalog.Facets {
		if f.ID == "LVL" {
			continue
		}
		texts := make([]string, len(f.Values))
		for i, v := range f.Values {
			texts[i] = v.EmbeddingText()
		}
		emb, err := a.embedder.Encode(ctx, texts)
		if err != nil {
			return eris.Wrap(err, "facet: embed facet values")
		}
		a.valueEmb[f.ID] = emb
	}
	return nil
}

func (a *Assigner) assignLevels(masters []model.MasterSkillRecord, facet Facet) {
	for i := range masters {
		level := masters[i].Level
		if level < model.MinLevel || level > model.MaxLevel {
			level = model.DefaultLevel
		}
		code := fmt.Sprintf("LVL.%d", level)
		value, _ := facet.Value(code)
		setAssignment(&masters[i], model.FacetAssignment{
			FacetID:    facet.ID,
			ValueCode:  code,
			ValueName:  value.Name,
			Confidence: 1.0,
			Method:     model.MethodDirectMapping,
		})
	}
}

// assignByEmbedding resolves what it can from similarity alone and
// returns the ambiguous cases needing LLM re-ranking.
func (a *Assigner) assignByEmbedding(masters []model.MasterSkillRecord, facet Facet) []rerankItem {
	var pending []rerankItem

	for i := range masters {
		emb := masters[i].Embedding
		if a.embedder == nil || emb == nil {
			setAssignment(&masters[i], a.keywordAssignment(facet, masters[i].SkillRecord))
			continue
		}

		top := a.topCandidates(facet, emb)
		best := top[0]

		if a.reranker != nil && len(top) > 1 && best.similarity < a.cfg.EmbeddingThreshold {
			var close []candidate
			for _, c := range top {
				if c.similarity >= a.cfg.RerankFloor {
					close = append(close, c)
				}
			}
			if len(close) > 1 {
				pending = append(pending, rerankItem{masterIdx: i, candidates: close})
				continue
			}
		}

		method := model.MethodEmbedding
		if best.similarity < a.cfg.EmbeddingThreshold {
			// Still assign the best match, flagged low confidence.
			method = model.MethodEmbeddingLowConf
		}
		assignment := model.FacetAssignment{
			FacetID:    facet.ID,
			ValueCode:  best.value.Code,
			ValueName:  best.value.Name,
			Confidence: best.similarity,
			Method:     method,
		}
		if facet.MultiValue && method == model.MethodEmbedding {
			for _, c := range top {
				if c.similarity >= a.cfg.RerankFloor && len(assignment.Values) < a.cfg.MaxMultiValues {
					assignment.Values = append(assignment.Values, c.value.Code)
				}
			}
		}
		setAssignment(&masters[i], assignment)
	}

	return pending
}

func (a *Assigner) topCandidates(facet Facet, emb []float32) []candidate {
	valueEmb := a.valueEmb[facet.ID]
	all := make([]candidate, len(facet.Values))
	for j, v := range facet.Values {
		all[j] = candidate{value: v, similarity: embedder.Similarity(emb, valueEmb[j])}
	}
	sort.SliceStable(all, func(x, y int) bool {
		return all[x].similarity > all[y].similarity
	})
	k := min(a.cfg.RerankTopK, len(all))
	return all[:k]
}

func (a *Assigner) rerank(ctx context.Context, masters []model.MasterSkillRecord, facet Facet, pending []rerankItem) {
	systemPrompt := facetSystemPrompt(facet)

	for start := 0; start < len(pending); start += a.cfg.BatchSize {
		end := min(start+a.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		prompts := make([]string, len(batch))
		for i, item := range batch {
			prompts[i] = facetUserPrompt(facet, masters[item.masterIdx].SkillRecord, item.candidates)
		}

		responses, err := a.reranker.GenerateBatch(ctx, prompts, systemPrompt)
		if err != nil {
			// The failing batch degrades; later batches still run.
			zap.L().Warn("facet: rerank batch failed, using embedding fallback",
				zap.String("facet", facet.ID),
				zap.Int("items", len(batch)),
				zap.Error(err),
			)
			for _, item := range batch {
				setAssignment(&masters[item.masterIdx], fallbackAssignment(facet, item))
			}
			continue
		}

		for i, item := range batch {
			a.applyRerankResponse(ctx, masters, facet, item, systemPrompt, prompts[i], responses[i])
		}
	}
}

func (a *Assigner) applyRerankResponse(ctx context.Context, masters []model.MasterSkillRecord, facet Facet, item rerankItem, systemPrompt, userPrompt, response string) {
	choice, llmConf, err := parseChoice(response, len(item.candidates))
	if err != nil {
		// Re-prompt individually until the answer parses or attempts
		// run out.
		result, retryErr := resilience.DoVal(ctx, a.cfg.Retry, func(ctx context.Context) (choiceResult, error) {
			raw, genErr := a.reranker.Generate(ctx, userPrompt, systemPrompt)
			if genErr != nil {
				return choiceResult{}, genErr
			}
			c, cf, parseErr := parseChoice(raw, len(item.candidates))
			return choiceResult{choice: c, conf: cf}, parseErr
		})
		if retryErr != nil {
			setAssignment(&masters[item.masterIdx], fallbackAssignment(facet, item))
			return
		}
		choice, llmConf = result.choice, result.conf
	}

	selected := item.candidates[choice-1]
	setAssignment(&masters[item.masterIdx], model.FacetAssignment{
		FacetID:   facet.ID,
		ValueCode: selected.value.Code,
		ValueName: selected.value.Name,
		// The model's confidence is blended with the embedding evidence
		// rather than trusted alone.
		Confidence: (llmConf + selected.similarity) / 2,
		Method:     model.MethodLLMRerank,
	})
}

func fallbackAssignment(facet Facet, item rerankItem) model.FacetAssignment {
	best := item.candidates[0]
	return model.FacetAssignment{
		FacetID:    facet.ID,
		ValueCode:  best.value.Code,
		ValueName:  best.value.Name,
		Confidence: best.similarity,
		Method:     model.MethodEmbeddingFallback,
	}
}

// keywordAssignment is the no-embedding degraded path: count keyword
// hits of each value in the skill text.
func (a *Assigner) keywordAssignment(facet Facet, rec model.SkillRecord) model.FacetAssignment {
	text := strings.ToLower(rec.CombinedText())
	best, bestHits := facet.Values[0], 0
	for _, v := range facet.Values {
		hits := 0
		for _, kw := range v.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = v, hits
		}
	}
	conf := 0.0
	if bestHits > 0 {
		conf = min(0.9, 0.4+float64(bestHits)*0.1)
	}
	return model.FacetAssignment{
		FacetID:    facet.ID,
		ValueCode:  best.Code,
		ValueName:  best.Name,
		Confidence: conf,
		Method:     model.MethodFallback,
	}
}

func setAssignment(m *model.MasterSkillRecord, assignment model.FacetAssignment) {
	if m.Facets == nil {
		m.Facets = make(map[string]model.FacetAssignment)
	}
	m.Facets[assignment.FacetID] = assignment
}

type choiceResult struct {
	choice int
	conf   float64
}

type choiceResponse struct {
	Choice     int     `json:"choice"`
	Confidence float64 `json:"confidence"`
}

func parseChoice(raw string, n int) (int, float64, error) {
	var parsed choiceResponse
	if err := genai.DecodeJSON(raw, &parsed); err != nil {
		return 0, 0, err
	}
	if parsed.Choice < 1 || parsed.Choice > n {
		return 0, 0, eris.Wrap(genai.ErrUnparseable, fmt.Sprintf("choice %d out of range 1-%d", parsed.Choice, n))
	}
	if parsed.Confidence <= 0 {
		parsed.Confidence = 0.7
	}
	return parsed.Choice, parsed.Confidence, nil
}

func facetSystemPrompt(facet Facet) string {
	return fmt.Sprintf(`You are an expert in vocational skills classification.
Your task is to select the BEST matching %s category for each skill.

%s

Analyze the skill's name, description, and category, then select the most appropriate %s value.
You MUST respond with valid JSON only. No additional text, explanation, or markdown.`,
		facet.Name, facet.Description, facet.Name)
}

func facetUserPrompt(facet Facet, rec model.SkillRecord, candidates []candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Select the BEST %s category for this skill:\n\n", facet.Name)
	fmt.Fprintf(&sb, "SKILL: %s\nDESCRIPTION: %s\n\n", rec.Name, truncate(rec.Description, 300))
	fmt.Fprintf(&sb, "CANDIDATE %s CATEGORIES:\n", strings.ToUpper(facet.Name))
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, c.value.Name, c.value.Description)
	}
	fmt.Fprintf(&sb, "\nWhich category (1-%d) is the BEST match? Respond with JSON only:\n", len(candidates))
	sb.WriteString(`{"choice": <number>, "confidence": <0.0-1.0>}`)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
