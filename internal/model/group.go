package model

// MatchType classifies how strongly a duplicate-group member matched
// its group's query record.
type MatchType string

const (
	MatchDirect  MatchType = "direct"
	MatchPartial MatchType = "partial"
)

// GroupMember is one non-trivial member of a duplicate group.
type GroupMember struct {
	ID         string    `json:"id"`
	MatchType  MatchType `json:"match_type"`
	MatchScore float64   `json:"match_score"`
}

// DuplicateGroup is a set of skill records judged to denote the same
// skill. Exactly one member is the master; every other member carries a
// match classification against the group.
type DuplicateGroup struct {
	MasterID string        `json:"master_id"`
	Members  []GroupMember `json:"members"`
}

// Size counts all records in the group, master included.
func (g DuplicateGroup) Size() int {
	n := 1
	for _, m := range g.Members {
		if m.ID != g.MasterID {
			n++
		}
	}
	return n
}

// MasterSkillRecord is the canonical representative of a duplicate
// group with the other members' metadata merged in. It is created once
// at merge time and not mutated afterwards, except for facet annotation.
type MasterSkillRecord struct {
	SkillRecord

	AlternativeTitles  []string `json:"alternative_titles"`
	AllRelatedCodes    []string `json:"all_related_codes"`
	AllRelatedKeywords []string `json:"all_related_kw"`
	MergeCount         int      `json:"merge_count"`

	Facets map[string]FacetAssignment `json:"facets,omitempty"`
}
