package ingest

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

// readSkillsXLSX reads the first sheet of a workbook. The header row
// names the columns; unrecognized columns are ignored.
func readSkillsXLSX(path string) ([]model.SkillRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		name = strings.ReplaceAll(name, " ", "_")
		cols[name] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, eris.Errorf("ingest: %s: header row has no name column", path)
	}

	var records []model.SkillRecord
	for rowIdx, row := range sheet.Rows[1:] {
		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[i].String())
		}

		name := get("name")
		if name == "" {
			continue
		}

		rec := model.SkillRecord{
			ID:          get("id"),
			Name:        name,
			Description: get("description"),
			Code:        get("code"),
			Category:    get("category"),
			Level:       model.ParseLevel(get("level")),
			Context:     model.ParseContext(get("context")),
			Keywords:    model.ParseKeywords(get("keywords")),
		}
		if rec.ID == "" {
			rec.ID = rowID(rec.Code, rowIdx)
		}
		if conf := get("confidence"); conf != "" {
			v, err := strconv.ParseFloat(conf, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: %s row %d: confidence", path, rowIdx+2)
			}
			rec.Confidence = v
		}
		records = append(records, rec)
	}
	return records, nil
}

func rowID(code string, rowIdx int) string {
	if code != "" {
		return code + "-" + strconv.Itoa(rowIdx+1)
	}
	return "skill-" + strconv.Itoa(rowIdx+1)
}
