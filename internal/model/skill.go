package model

import "strings"

// Context describes how a skill is acquired and applied.
type Context string

const (
	ContextPractical   Context = "practical"
	ContextTheoretical Context = "theoretical"
	ContextHybrid      Context = "hybrid"
)

// ParseContext normalizes a raw context label. Unknown or empty values
// default to hybrid rather than failing.
func ParseContext(s string) Context {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "practical", "hands-on", "applied":
		return ContextPractical
	case "theoretical", "academic", "theory":
		return ContextTheoretical
	default:
		return ContextHybrid
	}
}

// Index returns the context's position in the compatibility table
// (practical=0, theoretical=1, hybrid=2). Anything unrecognized maps
// to hybrid.
func (c Context) Index() int {
	switch c {
	case ContextPractical:
		return 0
	case ContextTheoretical:
		return 1
	default:
		return 2
	}
}

// Proficiency level bounds (SFIA-aligned, 1=Follow .. 7=Set Strategy).
const (
	MinLevel = 1
	MaxLevel = 7

	// DefaultLevel is substituted where a level is required for scoring
	// but the record never carried one.
	DefaultLevel = 3

	// LevelUnknown marks a record whose source data had no parseable
	// level. Unknown levels are treated as compatible with everything
	// during matching.
	LevelUnknown = 0
)

// ClampLevel forces a level into [MinLevel, MaxLevel]. LevelUnknown is
// passed through so downstream scoring can apply its leniency rules.
func ClampLevel(level int) int {
	if level == LevelUnknown {
		return LevelUnknown
	}
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// LevelOrDefault resolves LevelUnknown to DefaultLevel.
func LevelOrDefault(level int) int {
	if level == LevelUnknown {
		return DefaultLevel
	}
	return ClampLevel(level)
}

// SkillRecord is one extracted skill from either corpus (VET unit or
// university course).
type SkillRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Code        string    `json:"code,omitempty"`
	Category    string    `json:"category,omitempty"`
	Level       int       `json:"level"`
	Context     Context   `json:"context"`
	Confidence  float64   `json:"confidence"`
	Keywords    []string  `json:"keywords,omitempty"`
	Embedding   []float32 `json:"-"`
}

// CombinedText is the text projected into the embedding space.
func (s SkillRecord) CombinedText() string {
	if s.Description == "" {
		return s.Name
	}
	return s.Name + ". " + s.Description
}
