package dedup

import (
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

// Merge produces one MasterSkillRecord per unique skill: one per
// duplicate group plus one per ungrouped record. Merging is a second
// pass after master selection: the master's description, keywords, and
// level are upgraded to the best values found anywhere in the group,
// not left as the master's own.
func (d *Deduplicator) Merge(records []model.SkillRecord, groups []model.DuplicateGroup) []model.MasterSkillRecord {
	byID := make(map[string]model.SkillRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	grouped := make(map[string]bool)
	masterOf := make(map[string]model.DuplicateGroup)
	for _, g := range groups {
		grouped[g.MasterID] = true
		masterOf[g.MasterID] = g
		for _, m := range g.Members {
			grouped[m.ID] = true
		}
	}

	var out []model.MasterSkillRecord
	for _, r := range records {
		if grouped[r.ID] {
			g, isMaster := masterOf[r.ID]
			if !isMaster {
				continue
			}
			out = append(out, mergeGroup(r, g, byID))
			continue
		}
		out = append(out, singletonMaster(r))
	}

	zap.L().Info("dedup: merge complete",
		zap.Int("records", len(records)),
		zap.Int("unique_skills", len(out)),
	)
	return out
}

func mergeGroup(master model.SkillRecord, g model.DuplicateGroup, byID map[string]model.SkillRecord) model.MasterSkillRecord {
	m := model.MasterSkillRecord{
		SkillRecord:       master,
		AlternativeTitles: []string{},
		MergeCount:        1,
	}
	m.AllRelatedCodes = appendUnique(nil, master.Code)
	m.AllRelatedKeywords = appendUnique(nil, master.Keywords...)

	bestDesc := master.Description
	bestLevel := master.Level

	seenTitle := map[string]bool{master.Name: true}
	for _, member := range g.Members {
		r, ok := byID[member.ID]
		if !ok {
			continue
		}
		m.MergeCount++

		// Alternative titles: discovery order, deduplicated, never the
		// master's own name.
		if !seenTitle[r.Name] {
			seenTitle[r.Name] = true
			m.AlternativeTitles = append(m.AlternativeTitles, r.Name)
		}

		m.AllRelatedCodes = appendUnique(m.AllRelatedCodes, r.Code)
		m.AllRelatedKeywords = appendUnique(m.AllRelatedKeywords, r.Keywords...)

		if len(r.Description) > len(bestDesc) {
			bestDesc = r.Description
		}
		if r.Level > bestLevel {
			bestLevel = r.Level
		}
	}

	m.Description = bestDesc
	m.Level = bestLevel
	m.Keywords = m.AllRelatedKeywords
	return m
}

func singletonMaster(r model.SkillRecord) model.MasterSkillRecord {
	return model.MasterSkillRecord{
		SkillRecord:        r,
		AlternativeTitles:  []string{},
		AllRelatedCodes:    appendUnique(nil, r.Code),
		AllRelatedKeywords: appendUnique(nil, r.Keywords...),
		MergeCount:         1,
	}
}

// appendUnique appends values not already present, preserving
// first-seen order and skipping blanks.
func appendUnique(dst []string, values ...string) []string {
	if dst == nil {
		dst = []string{}
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
