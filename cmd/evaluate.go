package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/abhisek/tutorbench/internal/config"
	"github.com/abhisek/tutorbench/internal/platform"
	"github.com/abhisek/tutorbench/internal/runner"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Assess every student of a dataset and submit the predictions",
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("dataset", "", "Dataset: mini_dev, dev or test (default from config)")
	evaluateCmd.Flags().Int("concurrency", 0, "Sessions to run in parallel (default from config)")
	evaluateCmd.Flags().Int("max-turns", 0, "Local turn budget per session (default from config)")
	evaluateCmd.Flags().StringP("output", "o", "", "Results file (default <output_dir>/results_<dataset>_<time>.json)")
	evaluateCmd.Flags().Bool("no-submit", false, "Write results without submitting them")
	evaluateCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	evaluateCmd.Flags().String("truth", "", "Ground-truth file for a local MSE")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if d, _ := cmd.Flags().GetString("dataset"); d != "" {
		cfg.Runner.Dataset = d
	}
	if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
		cfg.Runner.Concurrency = c
	}
	if m, _ := cmd.Flags().GetInt("max-turns"); m > 0 {
		cfg.Assessment.MaxTurns = m
	}
	if err := config.ValidateDataset(cfg.Runner.Dataset); err != nil {
		return err
	}

	a, err := wireApp(cmd, cfg, logger, wireOpts{assess: true})
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	metrics, err := runner.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		stop := serveMetrics(addr, reg, a)
		defer stop()
	}

	ctx := cmd.Context()
	dataset := cfg.Runner.Dataset
	start := time.Now()

	students, err := a.platform.ListStudents(ctx, dataset)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	if len(students) == 0 {
		return fmt.Errorf("dataset %s has no students", dataset)
	}
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}

	r := a.runner(cfg.Runner.Concurrency, metrics)
	logger.Info("evaluation started", "dataset", dataset, "run_id", r.RunID(),
		"students", len(ids), "concurrency", cfg.Runner.Concurrency)

	results := r.RunBatch(ctx, ids)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation interrupted: %w", err)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = filepath.Join(cfg.Runner.OutputDir, runner.ResultsFileName(dataset, start))
	}
	if err := runner.WriteResults(out, results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	logger.Info("results written", "path", out, "sessions", results.Sessions(), "failed_students", len(results.Errors))

	rep := runner.Report{
		Dataset:  dataset,
		Results:  results,
		Students: len(ids),
		Duration: time.Since(start),
	}

	preds := results.Predictions()
	if truthPath, _ := cmd.Flags().GetString("truth"); truthPath != "" {
		mse, err := localMSE(truthPath, preds)
		if err != nil {
			logger.Warn("local MSE unavailable", "error", err)
		} else {
			rep.LocalMSE = &mse
		}
	}

	noSubmit, _ := cmd.Flags().GetBool("no-submit")
	switch {
	case noSubmit:
	case len(preds) == 0:
		logger.Warn("nothing to submit")
	default:
		res, err := a.platform.SubmitPredictions(ctx, preds, dataset)
		if err != nil {
			return fmt.Errorf("submit predictions: %w", err)
		}
		rep.MSE = &res.MSEScore

		tutoring, err := a.platform.SubmitTutoringQuality(ctx, dataset)
		if err != nil {
			logger.Warn("tutoring evaluation failed", "error", err)
		} else {
			rep.Tutoring = tutoring
		}
	}

	return runner.RenderReport(cmd.OutOrStdout(), rep)
}

func localMSE(path string, preds []platform.Prediction) (float64, error) {
	truth, err := runner.ReadTruth(path)
	if err != nil {
		return 0, fmt.Errorf("read truth: %w", err)
	}
	mse, _, err := runner.MSE(preds, truth)
	return mse, err
}

// serveMetrics exposes reg on addr until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry, a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
