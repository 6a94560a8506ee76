package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/pathways-group/skillmap-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSkills_JSONArray(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "skills.json", `[
		{"id":"s1","name":"tig   welding!!","level":4,"context":"hands-on","confidence":0.9},
		{"id":"s2","name":"root cause analysis","level":12,"context":"academic"}
	]`)

	records, err := LoadSkills(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Tig Welding", records[0].Name)
	assert.Equal(t, model.ContextPractical, records[0].Context)
	assert.Equal(t, 4, records[0].Level)

	// Out-of-range levels clamp instead of failing the load.
	assert.Equal(t, model.MaxLevel, records[1].Level)
	assert.Equal(t, model.ContextTheoretical, records[1].Context)
}

func TestLoadSkills_JSONDocument(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "unit.json", `{
		"code":"MEM05047","title":"Weld using GTAW",
		"skills":[{"id":"s1","name":"tig welding","level":3}]
	}`)

	records, err := LoadSkills(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Tig Welding", records[0].Name)
}

func TestLoadSkills_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadSkills("skills.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input format")
}

func TestLoadUnits_ConcurrentOrderPreserved(t *testing.T) {
	t.Parallel()

	a := writeFile(t, "a.json", `{"code":"U1","title":"Unit One","skills":[{"id":"s1","name":"welding","level":3}]}`)
	b := writeFile(t, "b.json", `{"code":"U2","title":"Unit Two","skills":[{"id":"s2","name":"machining","level":4}]}`)

	units, err := LoadUnits([]string{a, b})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "U1", units[0].Code)
	assert.Equal(t, "U2", units[1].Code)
	require.Len(t, units[0].Skills, 1)
	assert.Equal(t, "Welding", units[0].Skills[0].Name)
}

func TestLoadUnits_MissingCode(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "bad.json", `{"title":"No Code","skills":[]}`)
	_, err := LoadUnits([]string{p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit code is required")
}

func TestLoadCourse(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "course.json", `{"code":"COMP101","title":"Intro to Computing","skills":[{"id":"c1","name":"programming basics","level":2}]}`)
	course, err := LoadCourse(p)
	require.NoError(t, err)
	assert.Equal(t, "COMP101", course.Code)
	require.Len(t, course.Skills, 1)
	assert.Equal(t, "Programming Basics", course.Skills[0].Name)
}

func TestLoadSkills_XLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "skills.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Skills")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Name", "Description", "Code", "Category", "Level", "Context", "Confidence", "Keywords"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("s1")
	row.AddCell().SetString("tig welding")
	row.AddCell().SetString("Join thin-wall sections")
	row.AddCell().SetString("MEM05047")
	row.AddCell().SetString("technical")
	row.AddCell().SetString("4")
	row.AddCell().SetString("practical")
	row.AddCell().SetString("0.9")
	row.AddCell().SetString("welding; gtaw")

	// Blank names are skipped, not errors.
	blank := sheet.AddRow()
	blank.AddCell().SetString("s2")
	blank.AddCell().SetString("")

	require.NoError(t, f.Save(path))

	records, err := LoadSkills(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, "Tig Welding", rec.Name)
	assert.Equal(t, "MEM05047", rec.Code)
	assert.Equal(t, 4, rec.Level)
	assert.Equal(t, model.ContextPractical, rec.Context)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
	assert.Equal(t, []string{"welding", "gtaw"}, rec.Keywords)
}

func TestLoadSkills_XLSX_GeneratedIDs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "noid.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Skills")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{"Name", "Code"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("blueprint reading")
	row.AddCell().SetString("MEM09002")

	require.NoError(t, f.Save(path))

	records, err := LoadSkills(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MEM09002-1", records[0].ID)
}

func TestLoadSkills_XLSX_NoNameColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "headerless.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Skills")
	require.NoError(t, err)
	row := sheet.AddRow()
	row.AddCell().SetString("Something")

	require.NoError(t, f.Save(path))

	_, err = LoadSkills(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")
}
