package model

// AssignMethod records which path produced a facet assignment.
type AssignMethod string

const (
	// MethodEmbedding: the top embedding candidate cleared the
	// high-confidence threshold on its own.
	MethodEmbedding AssignMethod = "embedding"

	// MethodEmbeddingLowConf: best embedding candidate assigned even
	// though it fell below the threshold; flagged for review.
	MethodEmbeddingLowConf AssignMethod = "embedding_low_conf"

	// MethodLLMRerank: several candidates were close and an LLM picked
	// the winner.
	MethodLLMRerank AssignMethod = "embedding+llm_rerank"

	// MethodEmbeddingFallback: re-ranking was attempted but yielded no
	// parseable answer, so the best embedding candidate stands.
	MethodEmbeddingFallback AssignMethod = "embedding_fallback"

	// MethodDirectMapping: deterministic 1:1 mapping from an existing
	// field, no similarity search involved.
	MethodDirectMapping AssignMethod = "direct_mapping"

	// MethodFallback: keyword or category heuristic with no AI input.
	MethodFallback AssignMethod = "fallback"
)

// FacetAssignment is one skill's value on one facet. Multi-valued
// facets populate Values (ordered, best first) in addition to the
// primary ValueCode.
type FacetAssignment struct {
	FacetID    string       `json:"facet_id"`
	ValueCode  string       `json:"code"`
	ValueName  string       `json:"name"`
	Values     []string     `json:"values,omitempty"`
	Confidence float64      `json:"confidence"`
	Method     AssignMethod `json:"method"`
}
