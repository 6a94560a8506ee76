package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/facet"
	"github.com/pathways-group/skillmap-cli/internal/model"
)

// WriteWorkbook writes the annotated skills to an xlsx workbook: one
// sheet of skills with a column per facet, one sheet of family
// assignments when supplied.
func WriteWorkbook(path string, masters []model.MasterSkillRecord, families []facet.FamilyAssignment, catalog *facet.Catalog) error {
	f := xlsx.NewFile()
	if err := addSkillsSheet(f, masters, catalog); err != nil {
		return err
	}
	if families != nil {
		if err := addFamiliesSheet(f, masters, families); err != nil {
			return err
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	zap.L().Info("export: wrote workbook",
		zap.String("path", path),
		zap.Int("skills", len(masters)),
	)
	return nil
}

func addSkillsSheet(f *xlsx.File, masters []model.MasterSkillRecord, catalog *facet.Catalog) error {
	sheet, err := f.AddSheet("Skills")
	if err != nil {
		return eris.Wrap(err, "export: add skills sheet")
	}

	header := []string{"ID", "Skill Name", "Description", "Category", "Level", "Context", "Confidence"}
	for _, fc := range catalog.Facets {
		header = append(header, fc.Name)
	}
	header = append(header, "Alternative Titles", "All Related Codes", "All Related Keywords", "Merge Count")
	writeRow(sheet, header)

	for _, m := range masters {
		row := sheet.AddRow()
		row.AddCell().SetString(m.ID)
		row.AddCell().SetString(m.Name)
		row.AddCell().SetString(m.Description)
		row.AddCell().SetString(m.Category)
		row.AddCell().SetInt(model.LevelOrDefault(m.Level))
		row.AddCell().SetString(string(m.Context))
		row.AddCell().SetString(fmt.Sprintf("%.2f", m.Confidence))
		for _, fc := range catalog.Facets {
			if a, ok := m.Facets[fc.ID]; ok {
				row.AddCell().SetString(a.ValueName)
			} else {
				row.AddCell().SetString("")
			}
		}
		row.AddCell().SetString(strings.Join(m.AlternativeTitles, "; "))
		row.AddCell().SetString(strings.Join(m.AllRelatedCodes, "; "))
		row.AddCell().SetString(strings.Join(m.AllRelatedKeywords, "; "))
		row.AddCell().SetInt(m.MergeCount)
	}
	return nil
}

func addFamiliesSheet(f *xlsx.File, masters []model.MasterSkillRecord, families []facet.FamilyAssignment) error {
	sheet, err := f.AddSheet("Families")
	if err != nil {
		return eris.Wrap(err, "export: add families sheet")
	}

	writeRow(sheet, []string{"ID", "Skill Name", "Family", "Family Name", "Domain", "Confidence", "Method"})
	for i, m := range masters {
		if i >= len(families) {
			break
		}
		fam := families[i]
		row := sheet.AddRow()
		row.AddCell().SetString(m.ID)
		row.AddCell().SetString(m.Name)
		row.AddCell().SetString(fam.Key)
		row.AddCell().SetString(fam.Name)
		row.AddCell().SetString(fam.DomainName)
		row.AddCell().SetString(fmt.Sprintf("%.2f", fam.Confidence))
		row.AddCell().SetString(string(fam.Method))
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
