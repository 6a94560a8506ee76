package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Keep word characters plus the punctuation that appears in real
	// skill names ("C++", "C#", "TCP/IP", "CAD/CAM", "Health & Safety").
	nameCharsRe = regexp.MustCompile(`[^\w\s\-\+\#\&\/\.]`)

	titleCaser = cases.Title(language.English)
)

// CleanName normalizes a raw skill name: collapse whitespace, strip
// stray punctuation, title-case.
func CleanName(name string) string {
	name = nameCharsRe.ReplaceAllString(name, " ")
	name = whitespaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

// ParseKeywords splits a free-form keyword field on the delimiters seen
// in source exports (comma, semicolon, pipe, newline), trimming blanks.
func ParseKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'[]`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLevel extracts a proficiency level from loose source data
// ("3", "Level 3", 3.0). Returns LevelUnknown when nothing parses.
func ParseLevel(raw string) int {
	raw = strings.TrimSpace(strings.ToLower(raw))
	raw = strings.TrimPrefix(raw, "level")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LevelUnknown
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return ClampLevel(int(f))
	}
	return LevelUnknown
}

// Normalize applies the invariants a SkillRecord must satisfy before it
// enters the pipeline: non-empty ID and name, level clamped, context
// defaulted to hybrid, confidence in [0,1]. The record's position is
// used to synthesize a stable ID when the source had none.
func Normalize(rec SkillRecord, position int) SkillRecord {
	rec.Name = CleanName(rec.Name)
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("SK%06d", position)
	}
	rec.Level = ClampLevel(rec.Level)
	rec.Context = ParseContext(string(rec.Context))
	rec.Description = whitespaceRe.ReplaceAllString(strings.TrimSpace(rec.Description), " ")
	if rec.Confidence < 0 {
		rec.Confidence = 0
	}
	if rec.Confidence > 1 {
		rec.Confidence = 1
	}
	if rec.Category == "" {
		rec.Category = "general"
	}
	return rec
}

// NormalizeAll normalizes a batch in place-order, dropping records whose
// cleaned name is empty. Row order is preserved: it is the documented,
// deterministic processing order for duplicate grouping.
func NormalizeAll(recs []SkillRecord) []SkillRecord {
	out := make([]SkillRecord, 0, len(recs))
	for i, r := range recs {
		n := Normalize(r, i)
		if n.Name == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}
