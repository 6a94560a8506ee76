// Package similarity implements the multi-factor scoring core shared by
// deduplication, facet assignment, and credit-transfer coverage: fixed
// level/context compatibility tables blended with semantic similarity.
package similarity

import "github.com/pathways-group/skillmap-cli/internal/model"

// levelCompat maps a pair of SFIA proficiency levels (1-7) to a
// compatibility scalar. The table is symmetric; adjacent levels score
// 0.9 at the foundational end declining to 0.7 at the expert end, and a
// gap of five or more levels scores at most 0.1.
var levelCompat = [7][7]float32{
	{1.0, 0.9, 0.7, 0.5, 0.3, 0.1, 0.0},
	{0.9, 1.0, 0.9, 0.7, 0.5, 0.3, 0.1},
	{0.7, 0.9, 1.0, 0.8, 0.6, 0.4, 0.2},
	{0.5, 0.7, 0.8, 1.0, 0.8, 0.6, 0.4},
	{0.3, 0.5, 0.6, 0.8, 1.0, 0.8, 0.6},
	{0.1, 0.3, 0.4, 0.6, 0.8, 1.0, 0.7},
	{0.0, 0.1, 0.2, 0.4, 0.6, 0.7, 1.0},
}

// contextCompat maps context pairs (practical=0, theoretical=1,
// hybrid=2) to compatibility. Identical contexts are fully compatible,
// hybrid bridges both sides at 0.7, practical vs theoretical is 0.3.
var contextCompat = [3][3]float32{
	{1.0, 0.3, 0.7},
	{0.3, 1.0, 0.7},
	{0.7, 0.7, 1.0},
}

// LevelCompat returns the compatibility of two proficiency levels. A
// record with an unknown level is treated as compatible with anything:
// missing metadata must never block a match.
func LevelCompat(a, b int) float32 {
	if a == model.LevelUnknown || b == model.LevelUnknown {
		return 1.0
	}
	return levelCompat[model.ClampLevel(a)-1][model.ClampLevel(b)-1]
}

// ContextCompat returns the compatibility of two contexts.
func ContextCompat(a, b model.Context) float32 {
	return contextCompat[a.Index()][b.Index()]
}

// LevelCompatMatrix evaluates LevelCompat for every (a, b) pair without
// per-pair branching in callers: rows follow levelsA, columns levelsB.
func LevelCompatMatrix(levelsA, levelsB []int) [][]float32 {
	out := make([][]float32, len(levelsA))
	for i, la := range levelsA {
		row := make([]float32, len(levelsB))
		if la == model.LevelUnknown {
			for j := range row {
				row[j] = 1.0
			}
		} else {
			tr := levelCompat[model.ClampLevel(la)-1]
			for j, lb := range levelsB {
				if lb == model.LevelUnknown {
					row[j] = 1.0
				} else {
					row[j] = tr[model.ClampLevel(lb)-1]
				}
			}
		}
		out[i] = row
	}
	return out
}

// ContextCompatMatrix evaluates ContextCompat pairwise: rows follow
// ctxA, columns ctxB.
func ContextCompatMatrix(ctxA, ctxB []model.Context) [][]float32 {
	out := make([][]float32, len(ctxA))
	for i, ca := range ctxA {
		row := make([]float32, len(ctxB))
		tr := contextCompat[ca.Index()]
		for j, cb := range ctxB {
			row[j] = tr[cb.Index()]
		}
		out[i] = row
	}
	return out
}
