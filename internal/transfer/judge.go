package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/pkg/genai"
)

// Generator answers a single prompt. Satisfied by genai.Client.
type Generator interface {
	Generate(ctx context.Context, userPrompt, systemPrompt string) (string, error)
}

// genaiJudge decides coverage by asking an LLM whether any source skill
// covers the target. It is the pairwise alternative to the embedding
// path, kept for parity with deployments that have no embedding
// capability configured.
type genaiJudge struct {
	client Generator
}

// NewGenAIJudge builds a coverage Judge over an LLM client.
func NewGenAIJudge(client Generator) Judge {
	return &genaiJudge{client: client}
}

type coverageVerdict struct {
	Covered    bool    `json:"covered"`
	Confidence float64 `json:"confidence"`
}

func (j *genaiJudge) Covers(ctx context.Context, source []model.SkillRecord, target model.SkillRecord) (bool, float64, error) {
	if len(source) == 0 {
		return false, 0, nil
	}

	raw, err := j.client.Generate(ctx, coveragePrompt(source, target), coverageSystemPrompt())
	if err != nil {
		return false, 0, eris.Wrap(err, "transfer: coverage generate")
	}

	var verdict coverageVerdict
	if err := genai.DecodeJSON(raw, &verdict); err != nil {
		return false, 0, err
	}
	if verdict.Confidence <= 0 {
		verdict.Confidence = 0.7
	}
	return verdict.Covered, verdict.Confidence, nil
}

func coverageSystemPrompt() string {
	return `You are an expert in vocational and higher education skills analysis.
Your task is to judge whether a set of skills taught in VET units covers a target university skill.
A skill is covered when at least one source skill teaches substantially the same capability at a comparable level.
You MUST respond with valid JSON only. No additional text, explanation, or markdown.`
}

func coveragePrompt(source []model.SkillRecord, target model.SkillRecord) string {
	var sb strings.Builder
	sb.WriteString("SOURCE SKILLS (from VET units):\n")
	for i, s := range source {
		fmt.Fprintf(&sb, "%d. %s (level %d)", i+1, s.Name, model.LevelOrDefault(s.Level))
		if s.Description != "" {
			fmt.Fprintf(&sb, ": %s", truncate(s.Description, 200))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nTARGET SKILL: %s (level %d)\n", target.Name, model.LevelOrDefault(target.Level))
	if target.Description != "" {
		fmt.Fprintf(&sb, "DESCRIPTION: %s\n", truncate(target.Description, 300))
	}
	sb.WriteString("\nIs the target skill covered by the source skills? Respond with JSON only:\n")
	sb.WriteString(`{"covered": <true|false>, "confidence": <0.0-1.0>}`)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
