package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/hord"
	"github.com/thalesfsp/hord/internal/config"
	"github.com/thalesfsp/hord/internal/logger"
	"github.com/thalesfsp/hord/internal/store"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		maxEvals   int
		workers    int
		format     string
		noSave     bool
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Optimize the problem described by an experiment file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("max-evals") {
				cfg.Run.MaxEvals = maxEvals
			}

			if cmd.Flags().Changed("workers") {
				cfg.Run.Workers = workers
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if format != "pretty" && format != "json" {
				return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
			}

			if noSave {
				cfg.Store = config.StoreConfig{}
			}

			log := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			return execute(cmd.Context(), cfg, log, cmd.OutOrStdout(), format)
		},
	}

	c.Flags().StringVarP(&configPath, "config", "c", "", "Experiment file (required)")
	c.Flags().IntVar(&maxEvals, "max-evals", 0, "Override run.max_evals")
	c.Flags().IntVar(&workers, "workers", 0, "Override run.workers")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	c.Flags().BoolVar(&noSave, "no-save", false, "Do not write the evaluation history or the run report")

	_ = c.MarkFlagRequired("config")

	return c
}

// execute runs one optimization, persisting as configured, and prints the
// outcome even when the run was cancelled.
func execute(ctx context.Context, cfg *config.Config, log *slog.Logger, w io.Writer, format string) error {
	problem, err := buildProblem(cfg.Problem, log)
	if err != nil {
		return err
	}

	run := store.Run{
		ID:        store.NewRunID(),
		Problem:   cfg.Problem.Kind,
		Status:    store.StatusRunning,
		MaxEvals:  cfg.Run.MaxEvals,
		Workers:   cfg.Run.Workers,
		StartedAt: time.Now().UTC(),
	}

	log = log.With("run_id", run.ID)

	var db *store.SQLiteStore
	if cfg.Store.SQLitePath != "" {
		if db, err = store.NewSQLiteStore(ctx, cfg.Store.SQLitePath); err != nil {
			return err
		}
		defer db.Close()

		if err := db.CreateRun(ctx, run); err != nil {
			return err
		}
	}

	opt := cfg.Run.Optimization()
	opt.Logger = log

	// Buffered for the whole budget so no update is dropped.
	progress := make(chan hord.ProgressUpdate, opt.MaxEvals)
	opt.ProgressChan = progress

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		consumeProgress(db, run.ID, log, progress)
	}()

	log.Info("optimization started",
		"problem", run.Problem,
		"max_evals", opt.MaxEvals,
		"workers", opt.Workers,
		"surrogate", opt.Surrogate,
		"acquisition", cfg.Run.Acquisition,
	)

	result, runErr := hord.Optimize(ctx, problem, opt)
	close(progress)
	wg.Wait()

	run.Status = status(runErr)
	ended := time.Now().UTC()
	run.EndedAt = &ended

	if result != nil {
		run.Failed = result.Failed
		if result.Best != nil {
			best := result.BestValue
			run.BestValue = &best
		}
	}

	if db != nil {
		// The run context may be cancelled already; the summary is still written.
		if err := db.FinishRun(context.WithoutCancel(ctx), run.ID, run.Status, result, ended); err != nil {
			log.Error("failed to finish run", "error", err)
		}
	}

	if cfg.Store.ReportDir != "" {
		report := store.NewReport(run, problem.Space(), cfg.Run, result, runErr)

		path, err := store.NewReportStore(cfg.Store.ReportDir).Save(report)
		if err != nil {
			log.Error("failed to save report", "error", err)
		} else {
			log.Info("report saved", "path", path)
		}
	}

	log.Info("optimization finished", "status", run.Status, "duration", ended.Sub(run.StartedAt))

	if err := printResult(w, format, run, problem.Space(), result); err != nil {
		return err
	}

	return runErr
}

// consumeProgress logs every update and appends it to the evaluation log.
func consumeProgress(db *store.SQLiteStore, runID string, log *slog.Logger, updates <-chan hord.ProgressUpdate) {
	for u := range updates {
		attrs := []any{
			"evaluation", u.CurrentIteration,
			"total", u.TotalIterations,
			"phase", u.Phase,
			"duration", u.LastDuration,
		}

		if u.LastErr != nil {
			attrs = append(attrs, "error", u.LastErr)
		} else {
			attrs = append(attrs, "value", u.LastValue)
		}

		if u.CurrentBestParams != nil {
			attrs = append(attrs, "best", u.CurrentBestValue)
		}

		log.Debug("evaluation finished", attrs...)

		if db == nil {
			continue
		}

		e := hord.Evaluation{
			Index:    u.CurrentIteration,
			Phase:    u.Phase,
			Params:   u.CurrentParams,
			Value:    u.LastValue,
			Err:      u.LastErr,
			Duration: u.LastDuration,
		}

		if err := db.RecordEvaluation(context.Background(), runID, e); err != nil {
			log.Error("failed to record evaluation", "evaluation", e.Index, "error", err)
		}
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return store.StatusSucceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.StatusCancelled
	default:
		return store.StatusFailed
	}
}

func printResult(w io.Writer, format string, run store.Run, space hord.Space, result *hord.Result) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(store.NewReport(run, space, nil, result, nil))
	}

	fmt.Fprintf(w, "Run ID:     %s\n", run.ID)
	fmt.Fprintf(w, "Problem:    %s\n", run.Problem)
	fmt.Fprintf(w, "Status:     %s\n", run.Status)

	if result == nil {
		return nil
	}

	fmt.Fprintf(w, "Evaluated:  %d (%d failed)\n", len(result.Evaluations), result.Failed)

	if result.Best == nil {
		fmt.Fprintln(w, "Best:       none")
		return nil
	}

	fmt.Fprintf(w, "Best value: %.6g\n", result.BestValue)

	for i, d := range space {
		if d.Integer {
			fmt.Fprintf(w, "  %-22s %d\n", d.Name, int(result.Best[i]))
		} else {
			fmt.Fprintf(w, "  %-22s %.6g\n", d.Name, result.Best[i])
		}
	}

	return nil
}

