package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/ingest"
	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/store"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
)

var (
	transferUnits   []string
	transferCourse  string
	transferBest    bool
	transferOutput  string
	transferFlagged bool
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Score VET unit coverage of a university course",
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

		units, err := ingest.LoadUnits(transferUnits)
		if err != nil {
			return err
		}
		course, err := ingest.LoadCourse(transferCourse)
		if err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, model.RunKindTransfer, model.RunInput{
			SourcePath: strings.Join(transferUnits, ","),
			TargetPath: transferCourse,
			Profile:    cfg.Profile,
		})
		if err != nil {
			return eris.Wrap(err, "create run")
		}
		_ = st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning)

		summary := &model.RunSummary{}

		matcher := newMatcher()
		if err := embedTransferInputs(ctx, st, units, course); err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}

		if transferBest {
			best, err := matcher.BestCombination(ctx, units, course)
			if err != nil {
				finishRun(ctx, st, run.ID, summary, started, err)
				return err
			}
			// Score the winning subset for the full report.
			units = selectUnits(units, best.UnitCodes)
		}

		report, err := matcher.Match(ctx, units, course, edgeFlags())
		if err != nil {
			finishRun(ctx, st, run.ID, summary, started, err)
			return err
		}

		summary.CoverageRatio = report.Coverage.CoverageRatio
		summary.AlignmentScore = report.Score.FinalScore
		summary.Recommendation = string(report.Recommendation)
		finishRun(ctx, st, run.ID, summary, started, nil)

		zap.L().Info("transfer complete",
			zap.String("run_id", run.ID),
			zap.Strings("units", report.Coverage.UnitCodes),
			zap.String("course", course.Code),
			zap.String("recommendation", string(report.Recommendation)),
		)
		return writeReport(transferOutput, report)
	},
}

// newMatcher builds the coverage matcher from config, attaching the
// GenAI judge unless the profile forces embedding-only matching.
func newMatcher() *transfer.Matcher {
	var opts []transfer.Option
	if j := coverageJudge(); j != nil {
		opts = append(opts, transfer.WithJudge(j))
	}
	return transfer.NewMatcher(cfg.Transfer.Config, opts...)
}

// embedTransferInputs fills embeddings for every unit and the course,
// one cached batch per file.
func embedTransferInputs(ctx context.Context, st store.Store, units []transfer.Unit, course transfer.Course) error {
	emb := newEmbedder()
	for i := range units {
		if err := embedRecords(ctx, st, emb, units[i].Skills); err != nil {
			return err
		}
	}
	return embedRecords(ctx, st, emb, course.Skills)
}

func selectUnits(units []transfer.Unit, codes []string) []transfer.Unit {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []transfer.Unit
	for _, u := range units {
		if want[u.Code] {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return units
	}
	return out
}

// edgeFlags maps the CLI flag onto scoring edge cases. Context imbalance
// and level gaps are derived from the data; only the externally-known
// conditions need flagging.
func edgeFlags() *transfer.EdgeFlags {
	if !transferFlagged {
		return nil
	}
	return &transfer.EdgeFlags{OutdatedContent: true}
}

func writeReport(path string, report *transfer.MatchReport) error {
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
	return enc.Encode(report)
}

func init() {
	transferCmd.Flags().StringSliceVar(&transferUnits, "unit", nil, "VET unit skill file, repeatable (required)")
	transferCmd.Flags().StringVar(&transferCourse, "course", "", "university course skill file (required)")
	transferCmd.Flags().BoolVar(&transferBest, "best-combination", false, "search unit combinations for the best-covering subset")
	transferCmd.Flags().StringVar(&transferOutput, "output", "", "report output path (default stdout)")
	transferCmd.Flags().BoolVar(&transferFlagged, "outdated-content", false, "apply the outdated-content penalty to the unit material")
	_ = transferCmd.MarkFlagRequired("unit")
	_ = transferCmd.MarkFlagRequired("course")
	rootCmd.AddCommand(transferCmd)
}
