// Package ingest loads skill records from the JSON and xlsx exports
// produced by the extraction stage. Loading normalizes names, keywords,
// levels and contexts so downstream scoring never sees raw source data.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
)

// LoadSkills reads skill records from a single file, dispatching on
// extension (.json or .xlsx).
func LoadSkills(path string) ([]model.SkillRecord, error) {
	var (
		records []model.SkillRecord
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		records, err = readSkillsJSON(path)
	case ".xlsx":
		records, err = readSkillsXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported input format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	records = model.NormalizeAll(records)

	zap.L().Info("ingest: loaded skills",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// LoadUnits reads several unit files concurrently, preserving the
// input order of paths in the result.
func LoadUnits(paths []string) ([]transfer.Unit, error) {
	units := make([]transfer.Unit, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			u, err := readUnitJSON(path)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// LoadCourse reads a university course file: same shape as a unit file.
func LoadCourse(path string) (transfer.Course, error) {
	u, err := readUnitJSON(path)
	if err != nil {
		return transfer.Course{}, err
	}
	return transfer.Course{Code: u.Code, Title: u.Title, Skills: u.Skills}, nil
}
