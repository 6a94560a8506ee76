package vecindex

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// buildIVF trains a k-means coarse quantizer over the normalized
// embeddings and distributes every vector into its nearest centroid's
// inverted list. Initialization is deterministic (evenly spaced rows)
// so repeated builds over the same corpus produce the same index.
func (ix *Index) buildIVF(opts Options) {
	n := len(ix.emb)
	nlist := min(opts.NList, n)

	ix.normalized = normalizeRows(ix.emb)
	ix.nprobe = min(opts.NProbe, nlist)
	ix.overfetch = opts.OverFetch

	ix.centroids = farthestPointInit(ix.normalized, nlist)

	assign := make([]int, n)
	for iter := 0; iter < opts.KMeansIters; iter++ {
		changed := false
		for i, v := range ix.normalized {
			best := nearestCentroid(ix.centroids, v)
			if assign[i] != best || iter == 0 {
				assign[i] = best
				changed = true
			}
		}
		recomputeCentroids(ix.centroids, ix.normalized, assign)
		if !changed {
			break
		}
	}

	ix.lists = make([][]int, nlist)
	for i, c := range assign {
		ix.lists[c] = append(ix.lists[c], i)
	}

	zap.L().Debug("vecindex: ivf quantizer trained",
		zap.Int("nlist", nlist),
		zap.Int("nprobe", ix.nprobe),
	)
}

// queryIVF gathers candidates from the nprobe nearest lists, scores
// them semantically, then rescores with the exact multi-factor blend
// when metadata is available. The inverted file only indexes the
// semantic vector, so metadata weighting must happen at rescore time.
func (ix *Index) queryIVF(q, k int) ([]float32, []int) {
	probes := nearestCentroids(ix.centroids, ix.normalized[q], ix.nprobe)

	fetch := k * ix.overfetch
	var candidates []int
	for _, c := range probes {
		candidates = append(candidates, ix.lists[c]...)
		if len(candidates) >= fetch && len(probes) > 1 {
			// Keep probing order but stop gathering once enough
			// candidates are in hand.
			break
		}
	}
	if len(candidates) == 0 {
		candidates = []int{q}
	}
	sort.Ints(candidates)

	row := make([]float32, len(candidates))
	if ix.meta != nil {
		candEmb := make([][]float32, len(candidates))
		for i, c := range candidates {
			candEmb[i] = ix.emb[c]
		}
		block := ix.scorer.Score(
			[][]float32{ix.emb[q]}, candEmb,
			ix.meta.Select([]int{q}), ix.meta.Select(candidates),
		)
		copy(row, block[0])
	} else {
		for i, c := range candidates {
			row[i] = dotf(ix.normalized[q], ix.normalized[c])
		}
	}

	return topK(row, candidates, k)
}

// farthestPointInit seeds k-means deterministically: the first centroid
// is row 0, each subsequent one the row least similar to all centroids
// chosen so far. This spreads seeds across the corpus regardless of
// input ordering.
func farthestPointInit(vectors [][]float32, nlist int) [][]float32 {
	centroids := make([][]float32, 0, nlist)
	centroids = append(centroids, append([]float32(nil), vectors[0]...))

	maxSim := make([]float32, len(vectors))
	for i, v := range vectors {
		maxSim[i] = dotf(centroids[0], v)
	}

	for len(centroids) < nlist {
		best, bestSim := -1, float32(math.Inf(1))
		for i, s := range maxSim {
			if s < bestSim {
				best, bestSim = i, s
			}
		}
		next := append([]float32(nil), vectors[best]...)
		centroids = append(centroids, next)
		for i, v := range vectors {
			if s := dotf(next, v); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return centroids
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, float32(math.Inf(-1))
	for c, cent := range centroids {
		if s := dotf(cent, v); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func nearestCentroids(centroids [][]float32, v []float32, nprobe int) []int {
	type scored struct {
		idx   int
		score float32
	}
	all := make([]scored, len(centroids))
	for c, cent := range centroids {
		all[c] = scored{idx: c, score: dotf(cent, v)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return all[a].idx < all[b].idx
	})
	if nprobe > len(all) {
		nprobe = len(all)
	}
	out := make([]int, nprobe)
	for i := 0; i < nprobe; i++ {
		out[i] = all[i].idx
	}
	return out
}

func recomputeCentroids(centroids, vectors [][]float32, assign []int) {
	dim := len(vectors[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assign[i]
		counts[c]++
		for d, x := range v {
			sums[c][d] += float64(x)
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			// Empty list: leave the centroid where it was.
			continue
		}
		var norm float64
		for d := range sums[c] {
			m := sums[c][d] / float64(counts[c])
			sums[c][d] = m
			norm += m * m
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for d := range sums[c] {
			centroids[c][d] = float32(sums[c][d] / norm)
		}
	}
}

func normalizeRows(m [][]float32) [][]float32 {
	out := make([][]float32, len(m))
	for i, row := range m {
		var norm float64
		for _, v := range row {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		nr := make([]float32, len(row))
		if norm > 0 {
			for j, v := range row {
				nr[j] = float32(float64(v) / norm)
			}
		}
		out[i] = nr
	}
	return out
}

func dotf(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
