// Package export writes the taxonomy output artifacts: the JSON export
// consumed by the visualization layer, an xlsx workbook, and a CSV
// facet summary. The JSON field names and nesting are an external
// contract; downstream consumers parse them verbatim.
package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/facet"
	"github.com/pathways-group/skillmap-cli/internal/model"
)

// FacetValue is one facet assignment in the export.
type FacetValue struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Values     []string `json:"values,omitempty"`
}

// RelatedSkill is one entry of a skill's related-skills list.
type RelatedSkill struct {
	SkillID    string  `json:"skill_id"`
	SkillName  string  `json:"skill_name"`
	Similarity float64 `json:"similarity"`
}

// Record is the per-skill export object, keyed by skill id in the
// output document.
type Record struct {
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Category           string                `json:"category"`
	Level              int                   `json:"level"`
	Context            string                `json:"context"`
	Confidence         float64               `json:"confidence"`
	Facets             map[string]FacetValue `json:"facets"`
	AlternativeTitles  []string              `json:"alternative_titles"`
	AllRelatedCodes    []string              `json:"all_related_codes"`
	AllRelatedKeywords []string              `json:"all_related_kw"`
	Family             string                `json:"family,omitempty"`
	FamilyName         string                `json:"family_name,omitempty"`
	RelatedSkills      []RelatedSkill        `json:"related_skills,omitempty"`
}

// BuildRecords assembles the export map from annotated master records.
// families may be nil or parallel to masters; related maps skill id to
// its related-skills list and may be nil.
func BuildRecords(masters []model.MasterSkillRecord, families []facet.FamilyAssignment, related map[string][]RelatedSkill) map[string]Record {
	out := make(map[string]Record, len(masters))
	for i, m := range masters {
		rec := Record{
			Name:               m.Name,
			Description:        m.Description,
			Category:           m.Category,
			Level:              model.LevelOrDefault(m.Level),
			Context:            string(m.Context),
			Confidence:         m.Confidence,
			Facets:             make(map[string]FacetValue, len(m.Facets)),
			AlternativeTitles:  emptyNotNil(m.AlternativeTitles),
			AllRelatedCodes:    emptyNotNil(m.AllRelatedCodes),
			AllRelatedKeywords: emptyNotNil(m.AllRelatedKeywords),
		}
		for id, a := range m.Facets {
			rec.Facets[id] = FacetValue{
				Code:       a.ValueCode,
				Name:       a.ValueName,
				Confidence: a.Confidence,
				Values:     a.Values,
			}
		}
		if families != nil && i < len(families) && families[i].Assigned() {
			rec.Family = families[i].Key
			rec.FamilyName = families[i].Name
		}
		if related != nil {
			rec.RelatedSkills = related[m.ID]
		}
		out[m.ID] = rec
	}
	return out
}

// WriteJSON writes the export document to path.
func WriteJSON(path string, records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal records")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "export: write json")
	}
	zap.L().Info("export: wrote json",
		zap.String("path", path),
		zap.Int("skills", len(records)),
	)
	return nil
}

func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
