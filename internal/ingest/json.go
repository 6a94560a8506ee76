package ingest

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
)

// skillDocument is the object form of a skill file: a unit or course
// header plus its extracted skills. A bare JSON array of records is
// also accepted.
type skillDocument struct {
	Code   string              `json:"code"`
	Title  string              `json:"title"`
	Skills []model.SkillRecord `json:"skills"`
}

func readSkillsJSON(path string) ([]model.SkillRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read json")
	}

	// Bare array first; the object form as fallback.
	var records []model.SkillRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var doc skillDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return doc.Skills, nil
}

func readUnitJSON(path string) (transfer.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transfer.Unit{}, eris.Wrap(err, "ingest: read unit")
	}

	var doc skillDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return transfer.Unit{}, eris.Wrapf(err, "ingest: parse %s", path)
	}
	if doc.Code == "" {
		return transfer.Unit{}, eris.Errorf("ingest: %s: unit code is required", path)
	}

	return transfer.Unit{Code: doc.Code, Title: doc.Title, Skills: model.NormalizeAll(doc.Skills)}, nil
}
