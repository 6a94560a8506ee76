package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pathways-group/skillmap-cli/internal/model"
	"github.com/pathways-group/skillmap-cli/internal/store"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coverage-scoring HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// scoreRequest is the transfer-scoring API payload: a set of VET units
// against one course, all with skills inline.
type scoreRequest struct {
	Units           []transfer.Unit     `json:"units"`
	Course          transfer.Course     `json:"course"`
	BestCombination bool                `json:"best_combination,omitempty"`
	Edge            *transfer.EdgeFlags `json:"edge_flags,omitempty"`
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		upstreams := map[string]string{}
		for name, state := range serviceBreakers().States() {
			upstreams[name] = state.String()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"upstreams": upstreams,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transfer/score", handleScore(st))
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{id}", handleGetRun(st))
	})

	return r
}

func handleScore(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Units) == 0 || req.Course.Code == "" {
			writeError(w, http.StatusBadRequest, "units and course are required")
			return
		}

		ctx := r.Context()
		if err := embedTransferInputs(ctx, st, req.Units, req.Course); err != nil {
			zap.L().Error("score: embedding failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "embedding service unavailable")
			return
		}

		matcher := newMatcher()
		units := req.Units
		if req.BestCombination {
			best, err := matcher.BestCombination(ctx, units, req.Course)
			if err != nil {
				zap.L().Error("score: combination search failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "scoring failed")
				return
			}
			units = selectUnits(units, best.UnitCodes)
		}

		report, err := matcher.Match(ctx, units, req.Course, req.Edge)
		if err != nil {
			zap.L().Error("score: match failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "scoring failed")
			return
		}

		run, err := st.CreateRun(ctx, model.RunKindTransfer, model.RunInput{
			TargetPath: req.Course.Code,
			Profile:    cfg.Profile,
		})
		if err == nil {
			finishRun(ctx, st, run.ID, &model.RunSummary{
				CoverageRatio:  report.Coverage.CoverageRatio,
				AlignmentScore: report.Score.FinalScore,
				Recommendation: string(report.Recommendation),
			}, time.Now(), nil)
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		runs, err := st.ListRuns(r.Context(), store.RunFilter{
			Kind:   model.RunKind(q.Get("kind")),
			Status: model.RunStatus(q.Get("status")),
		})
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
