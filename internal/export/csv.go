package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/facet"
	"github.com/pathways-group/skillmap-cli/internal/model"
)

// WriteFacetSummary writes a CSV counting how many skills carry each
// facet value, in catalog order.
func WriteFacetSummary(path string, masters []model.MasterSkillRecord, catalog *facet.Catalog) error {
	counts := make(map[string]int)
	for _, m := range masters {
		for _, a := range m.Facets {
			counts[a.ValueCode]++
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create summary")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"facet_id", "facet_name", "code", "name", "skill_count"}); err != nil {
		return eris.Wrap(err, "export: write summary header")
	}
	for _, fc := range catalog.Facets {
		for _, v := range fc.Values {
			record := []string{fc.ID, fc.Name, v.Code, v.Name, strconv.Itoa(counts[v.Code])}
			if err := w.Write(record); err != nil {
				return eris.Wrap(err, "export: write summary row")
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush summary")
	}

	zap.L().Info("export: wrote facet summary", zap.String("path", path))
	return nil
}
