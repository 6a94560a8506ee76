package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"tig   welding!!", "Tig Welding"},
		{"  root cause analysis ", "Root Cause Analysis"},
		{"c++ programming", "C++ Programming"},
		{"health & safety", "Health & Safety"},
		{"tcp/ip networking", "Tcp/Ip Networking"},
		{"???", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanName(tt.in), "input %q", tt.in)
	}
}

func TestParseKeywords(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"welding", "gtaw", "fabrication"}, ParseKeywords("welding; gtaw, fabrication"))
	assert.Equal(t, []string{"a", "b"}, ParseKeywords("a|b"))
	assert.Equal(t, []string{"one", "two"}, ParseKeywords("one\ntwo"))
	assert.Nil(t, ParseKeywords("   "))
	assert.Equal(t, []string{"quoted"}, ParseKeywords(`"quoted"`))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3, ParseLevel("3"))
	assert.Equal(t, 3, ParseLevel("Level 3"))
	assert.Equal(t, 3, ParseLevel("3.0"))
	assert.Equal(t, MaxLevel, ParseLevel("12"))
	assert.Equal(t, LevelUnknown, ParseLevel(""))
	assert.Equal(t, LevelUnknown, ParseLevel("advanced"))
}

func TestParseContext(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContextPractical, ParseContext("hands-on"))
	assert.Equal(t, ContextPractical, ParseContext("  Applied "))
	assert.Equal(t, ContextTheoretical, ParseContext("academic"))
	assert.Equal(t, ContextHybrid, ParseContext(""))
	assert.Equal(t, ContextHybrid, ParseContext("mixed"))
}

func TestClampLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, LevelUnknown, ClampLevel(LevelUnknown))
	assert.Equal(t, MinLevel, ClampLevel(-4))
	assert.Equal(t, MaxLevel, ClampLevel(99))
	assert.Equal(t, 5, ClampLevel(5))
	assert.Equal(t, DefaultLevel, LevelOrDefault(LevelUnknown))
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	rec := Normalize(SkillRecord{
		Name:        "  tig welding ",
		Description: "Join  thin-wall\nsections",
		Level:       12,
		Confidence:  1.4,
	}, 7)

	assert.Equal(t, "Tig Welding", rec.Name)
	assert.Equal(t, "SK000007", rec.ID)
	assert.Equal(t, "Join thin-wall sections", rec.Description)
	assert.Equal(t, MaxLevel, rec.Level)
	assert.Equal(t, ContextHybrid, rec.Context)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, "general", rec.Category)
}

func TestNormalizeAll_DropsEmptyNames(t *testing.T) {
	t.Parallel()
	out := NormalizeAll([]SkillRecord{
		{ID: "a", Name: "welding"},
		{ID: "b", Name: "!!!"},
		{ID: "c", Name: "machining"},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestCombinedText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Welding", SkillRecord{Name: "Welding"}.CombinedText())
	assert.Equal(t, "Welding. Join metal parts",
		SkillRecord{Name: "Welding", Description: "Join metal parts"}.CombinedText())
}
