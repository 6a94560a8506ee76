// Package vecindex provides batched top-k nearest-neighbor search over a
// fixed embedding set, with an exact dense backend for small and medium
// corpora and an inverted-file approximate backend for large ones.
package vecindex

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/similarity"
)

// Backend selects the search implementation.
type Backend string

const (
	// BackendAuto picks flat below IVFThreshold and IVF above it.
	BackendAuto Backend = ""
	// BackendFlat scores against the exact similarity matrix.
	BackendFlat Backend = "flat"
	// BackendIVF uses an inverted-file index over the semantic vectors,
	// with optional multi-factor rescoring of retrieved candidates.
	BackendIVF Backend = "ivf"
)

// Sentinel fills result slots that are below threshold or beyond the
// available candidates.
const Sentinel = -1

// Options configures index construction.
type Options struct {
	Backend Backend `yaml:"backend" mapstructure:"backend"`

	// BlockThreshold is the corpus size above which the flat backend
	// computes its matrix in blocks instead of one dense pass, and
	// BackendAuto switches to IVF. Default 1000.
	BlockThreshold int `yaml:"block_threshold" mapstructure:"block_threshold"`

	// NList is the number of inverted lists. Default n/50, capped at
	// 1024, floor 1.
	NList int `yaml:"nlist" mapstructure:"nlist"`

	// NProbe is how many lists each query visits. Default min(16, NList).
	NProbe int `yaml:"nprobe" mapstructure:"nprobe"`

	// OverFetch multiplies k when gathering IVF candidates so that
	// multi-factor rescoring has room to reorder. Default 3.
	OverFetch int `yaml:"overfetch" mapstructure:"overfetch"`

	// KMeansIters bounds coarse-quantizer training. Default 10.
	KMeansIters int `yaml:"kmeans_iters" mapstructure:"kmeans_iters"`
}

func (o Options) withDefaults(n int) Options {
	if o.BlockThreshold <= 0 {
		o.BlockThreshold = 1000
	}
	if o.Backend == BackendAuto {
		if n > o.BlockThreshold {
			o.Backend = BackendIVF
		} else {
			o.Backend = BackendFlat
		}
	}
	if o.NList <= 0 {
		o.NList = n / 50
		if o.NList > 1024 {
			o.NList = 1024
		}
		if o.NList < 1 {
			o.NList = 1
		}
	}
	if o.NProbe <= 0 {
		o.NProbe = min(16, o.NList)
	}
	if o.OverFetch <= 0 {
		o.OverFetch = 3
	}
	if o.KMeansIters <= 0 {
		o.KMeansIters = 10
	}
	return o
}

// Index answers top-k similarity queries over the embedding set it was
// built from. Queries are addressed by row index into that set.
type Index struct {
	backend Backend
	scorer  *similarity.Scorer
	emb     [][]float32
	meta    *similarity.Metadata

	// flat backend
	matrix [][]float32

	// ivf backend
	normalized [][]float32
	centroids  [][]float32
	lists      [][]int
	nprobe     int
	overfetch  int
}

// Build constructs an index over emb. meta may be nil, in which case
// scoring is purely semantic. The scorer supplies the multi-factor
// blend for exact scoring and IVF rescoring.
func Build(scorer *similarity.Scorer, emb [][]float32, meta *similarity.Metadata, opts Options) (*Index, error) {
	if len(emb) == 0 {
		return nil, eris.New("vecindex: empty embedding set")
	}
	if meta != nil && len(meta.Levels) != len(emb) {
		return nil, eris.Errorf("vecindex: metadata rows (%d) do not match embeddings (%d)", len(meta.Levels), len(emb))
	}
	opts = opts.withDefaults(len(emb))

	ix := &Index{
		backend: opts.Backend,
		scorer:  scorer,
		emb:     emb,
		meta:    meta,
	}

	switch opts.Backend {
	case BackendFlat:
		ix.buildFlat(opts)
	case BackendIVF:
		ix.buildIVF(opts)
	default:
		return nil, eris.Errorf("vecindex: unknown backend %q", opts.Backend)
	}

	zap.L().Debug("vecindex: index built",
		zap.String("backend", string(ix.backend)),
		zap.Int("size", len(emb)),
	)
	return ix, nil
}

// Size reports the number of indexed items.
func (ix *Index) Size() int { return len(ix.emb) }

// BackendName reports the backend in use.
func (ix *Index) BackendName() Backend { return ix.backend }

func (ix *Index) buildFlat(opts Options) {
	if len(ix.emb) <= opts.BlockThreshold {
		ix.matrix = ix.scorer.Score(ix.emb, ix.emb, ix.meta, ix.meta)
		return
	}
	// Large corpus: tile the computation to bound peak memory.
	ix.matrix = ix.scorer.ScoreSelf(ix.emb, ix.meta)
}

// Query returns, per query row, the top-k matches sorted descending by
// score. Slots below threshold or beyond the available candidates hold
// Sentinel in both outputs. A negative threshold disables filtering.
func (ix *Index) Query(queryIndices []int, k int, threshold float64) ([][]float32, [][]int) {
	scores := make([][]float32, len(queryIndices))
	indices := make([][]int, len(queryIndices))

	for qi, q := range queryIndices {
		var rowScores []float32
		var rowIdx []int
		if ix.backend == BackendFlat {
			rowScores, rowIdx = topK(ix.matrix[q], nil, k)
		} else {
			rowScores, rowIdx = ix.queryIVF(q, k)
		}
		applyThreshold(rowScores, rowIdx, threshold)
		scores[qi] = rowScores
		indices[qi] = rowIdx
	}
	return scores, indices
}

// topK selects the k largest entries of row. candidates maps row
// positions back to corpus indices; nil means identity.
func topK(row []float32, candidates []int, k int) ([]float32, []int) {
	n := len(row)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if row[order[a]] != row[order[b]] {
			return row[order[a]] > row[order[b]]
		}
		// Stable tie-break on corpus index keeps results deterministic.
		return resolveIdx(order[a], candidates) < resolveIdx(order[b], candidates)
	})

	scores := make([]float32, k)
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		if i < n {
			scores[i] = row[order[i]]
			idx[i] = resolveIdx(order[i], candidates)
		} else {
			scores[i] = Sentinel
			idx[i] = Sentinel
		}
	}
	return scores, idx
}

func resolveIdx(pos int, candidates []int) int {
	if candidates == nil {
		return pos
	}
	return candidates[pos]
}

func applyThreshold(scores []float32, indices []int, threshold float64) {
	if threshold < 0 {
		return
	}
	for i, s := range scores {
		if indices[i] == Sentinel {
			continue
		}
		if float64(s) < threshold {
			scores[i] = Sentinel
			indices[i] = Sentinel
		}
	}
}
