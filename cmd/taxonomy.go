package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/export"
	"github.com/pathways-group/skillmap-cli/internal/facet"
	"github.com/pathways-group/skillmap-cli/internal/ingest"
	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
)

var (
	taxonomyInput   string
	taxonomyOutput  string
	taxonomyXLSX    string
	taxonomyCSV     string
	taxonomySkipDup bool
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Deduplicate skills and assign facets and families",
	Long:  "Runs the full enrichment pipeline: dedup, facet assignment against the taxonomy catalog, family assignment, and export with related-skill links.",
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

		records, err := ingest.LoadSkills(taxonomyInput)
		if err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, model.RunKindTaxonomy, model.RunInput{
			SourcePath:  taxonomyInput,
			Profile:     cfg.Profile,
			RecordCount: len(records),
		})
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		_ = st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning)

		summary := &model.RunSummary{InputSkills: len(records)}

		var masters []model.MasterSkillRecord
		var groups []model.DuplicateGroup
		if taxonomySkipDup {
			if err := embedRecords(ctx, st, newEmbedder(), records); err != nil {
				finishRun(ctx, st, run.ID, summary, started, err)
				return err
			}
			masters = make([]model.MasterSkillRecord, len(records))
			for i, r := range records {
				masters[i] = model.MasterSkillRecord{SkillRecord: r, MergeCount: 1}
			}
		} else {
			masters, groups, err = runDedup(ctx, st, records)
			if err != nil {
				finishRun(ctx, st, run.ID, summary, started, err)
				return err
			}
		}
		summary.UniqueSkills = len(masters)
		summary.DuplicateGroups = len(groups)
		summary.MergedSkills = len(records) - len(masters)

		catalog, err := facet.LoadCatalog()
		if err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}

		emb := newEmbedder()
		reranker := newReranker()
		if reranker == nil {
			zap.L().Warn("no generation API key configured, LLM re-ranking disabled")
		}

		facetCfg := cfg.Facet
		facetCfg.Retry = cfg.Retry.Build()
		facetCfg.Retry.OnRetry = resilience.RetryLogger(resilience.ServiceGeneration, "facet_rerank")
		assigner := facet.NewAssigner(facetCfg, catalog, emb, reranker)
		if err := assigner.Assign(ctx, masters); err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}
		summary.FacetedSkills = len(masters)

		familyCfg := cfg.Family
		familyCfg.Retry = cfg.Retry.Build()
		familyCfg.Retry.OnRetry = resilience.RetryLogger(resilience.ServiceGeneration, "family_rerank")
		familyAssigner := facet.NewFamilyAssigner(familyCfg, catalog, emb, reranker)
		families, err := familyAssigner.Assign(ctx, masters)
		if err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}
		for _, f := range families {
			if f.Assigned() {
				summary.FamilyAssigned++
			}
		}

		if err := writeTaxonomy(masters, families, catalog); err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}

		finishRun(ctx, st, run.ID, summary, started, nil)
		zap.L().Info("taxonomy complete",
			zap.String("run_id", run.ID),
			zap.Int("unique", len(masters)),
			zap.Int("family_assigned", summary.FamilyAssigned),
		)
		return nil
	},
}

func writeTaxonomy(masters []model.MasterSkillRecord, families []facet.FamilyAssignment, catalog *facet.Catalog) error {
	related := export.ComputeRelated(masters, 0, 0)
	records := export.BuildRecords(masters, families, related)

	if err := export.WriteJSON(taxonomyOutput, records); err != nil {
		return err
	}
	if taxonomyXLSX != "" {
		if err := export.WriteWorkbook(taxonomyXLSX, masters, families, catalog); err != nil {
			return err
		}
	}
	if taxonomyCSV != "" {
		if err := export.WriteFacetSummary(taxonomyCSV, masters, catalog); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	taxonomyCmd.Flags().StringVar(&taxonomyInput, "input", "", "skills file, .json or .xlsx (required)")
	taxonomyCmd.Flags().StringVar(&taxonomyOutput, "output", "skills_tagged.json", "tagged skills JSON output path")
	taxonomyCmd.Flags().StringVar(&taxonomyXLSX, "xlsx", "", "also write a review workbook to this path")
	taxonomyCmd.Flags().StringVar(&taxonomyCSV, "csv", "", "also write a facet summary CSV to this path")
	taxonomyCmd.Flags().BoolVar(&taxonomySkipDup, "skip-dedup", false, "assign facets to raw records without deduplicating")
	_ = taxonomyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(taxonomyCmd)
}
