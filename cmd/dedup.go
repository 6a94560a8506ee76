package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/dedup"
	"github.com/pathways-group/skillmap-cli/internal/ingest"
	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
	"github.com/pathways-group/skillmap-cli/internal/store"
)

var (
	dedupInput  string
	dedupOutput string
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Deduplicate extracted skills into master records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := ingest.LoadSkills(dedupInput)
		if err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, model.RunKindDedup, model.RunInput{
			SourcePath:  dedupInput,
			Profile:     cfg.Profile,
			RecordCount: len(records),
		})
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		_ = st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning)

		summary := &model.RunSummary{InputSkills: len(records)}

		masters, groups, err := runDedup(ctx, st, records)
		if err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}

		summary.UniqueSkills = len(masters)
		summary.DuplicateGroups = len(groups)
		summary.MergedSkills = len(records) - len(masters)
		finishRun(ctx, st, run.ID, summary, started, nil)

		zap.L().Info("dedup complete",
			zap.String("run_id", run.ID),
			zap.Int("input", len(records)),
			zap.Int("unique", len(masters)),
			zap.Int("groups", len(groups)),
		)

		return writeMasters(dedupOutput, masters)
	},
}

// runDedup embeds the records and runs the grouping and merge passes.
// Shared with the taxonomy command, which deduplicates before assigning.
func runDedup(ctx context.Context, st store.Store, records []model.SkillRecord) ([]model.MasterSkillRecord, []model.DuplicateGroup, error) {
	if err := embedRecords(ctx, st, newEmbedder(), records); err != nil {
		return nil, nil, err
	}

	embeddings := make([][]float32, len(records))
	for i, r := range records {
		embeddings[i] = r.Embedding
	}

	d := dedup.New(cfg.Dedup, similarity.New(cfg.Similarity))
	groups, err := d.FindGroups(records, embeddings)
	if err != nil {
		return nil, nil, err
	}
	masters := d.Merge(records, groups)
	return masters, groups, nil
}

func writeMasters(path string, masters []model.MasterSkillRecord) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "create output file")
		}
		defer f.Close() //nolint:errcheck
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(masters)
}

func init() {
	dedupCmd.Flags().StringVar(&dedupInput, "input", "", "skills file, .json or .xlsx (required)")
	dedupCmd.Flags().StringVar(&dedupOutput, "output", "", "master records output path (default stdout)")
	_ = dedupCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(dedupCmd)
}
