package config

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Profile names form a closed set; anything else is a configuration
// error, not a silent fallback.
const (
	ProfileFast     = "fast"
	ProfileBalanced = "balanced"
	ProfileThorough = "thorough"
	ProfileDev      = "dev"
)

type profileOverlay struct {
	description     string
	semanticWeight  float64
	levelWeight     float64
	contextWeight   float64
	dedupPartial    float64
	rerankBatchSize int
	cacheTTLHours   int
	embeddingOnly   bool
	logLevel        string
}

var profiles = map[string]profileOverlay{
	ProfileFast: {
		description:     "quick analysis, embedding-only matching",
		semanticWeight:  0.8,
		levelWeight:     0.2,
		contextWeight:   0,
		dedupPartial:    0.7,
		rerankBatchSize: 16,
		cacheTTLHours:   720,
		embeddingOnly:   true,
	},
	ProfileBalanced: {
		description:     "default balance of speed and accuracy",
		semanticWeight:  0.7,
		levelWeight:     0.3,
		contextWeight:   0.15,
		dedupPartial:    0.75,
		rerankBatchSize: 8,
		cacheTTLHours:   168,
	},
	ProfileThorough: {
		description:     "comprehensive analysis, cache disabled",
		semanticWeight:  0.6,
		levelWeight:     0.4,
		contextWeight:   0.15,
		dedupPartial:    0.8,
		rerankBatchSize: 4,
		cacheTTLHours:   0,
	},
	ProfileDev: {
		description:     "development mode, verbose logging, tiny batches",
		semanticWeight:  0.7,
		levelWeight:     0.3,
		contextWeight:   0.15,
		dedupPartial:    0.75,
		rerankBatchSize: 1,
		cacheTTLHours:   0,
		logLevel:        "debug",
	},
}

// ProfileNames lists the known profiles in stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileDescription returns the one-line summary for a known profile,
// or "" for an unknown one.
func ProfileDescription(name string) string {
	return profiles[name].description
}

// ApplyProfile overlays a named profile onto cfg. Unknown names are an
// error so a typo never silently runs with defaults.
func ApplyProfile(cfg *Config, name string) error {
	p, ok := profiles[name]
	if !ok {
		return eris.Errorf("config: unknown profile %q (known: fast, balanced, thorough, dev)", name)
	}

	cfg.Profile = name
	cfg.Similarity.Weights.Semantic = p.semanticWeight
	cfg.Similarity.Weights.Level = p.levelWeight
	cfg.Similarity.Weights.Context = p.contextWeight
	cfg.Dedup.PartialThreshold = p.dedupPartial
	cfg.Facet.BatchSize = p.rerankBatchSize
	cfg.Family.BatchSize = p.rerankBatchSize
	cfg.Store.CacheTTLHours = p.cacheTTLHours
	cfg.Transfer.EmbeddingOnly = cfg.Transfer.EmbeddingOnly || p.embeddingOnly
	cfg.Transfer.Similarity = cfg.Similarity
	if p.logLevel != "" {
		cfg.Log.Level = p.logLevel
	}
	return nil
}
