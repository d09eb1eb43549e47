package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/hord/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		format string
	)

	c := &cobra.Command{
		Use:   "history",
		Short: "List stored runs, or the evaluations of one run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "pretty" && format != "json" {
				return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
			}

			db, err := store.NewSQLiteStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()

			if runID == "" {
				runs, err := db.ListRuns(cmd.Context())
				if err != nil {
					return err
				}

				if format == "json" {
					return writeJSON(w, runs)
				}

				printRuns(w, runs)

				return nil
			}

			run, err := db.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}

			evals, err := db.ListEvaluations(cmd.Context(), runID)
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(w, map[string]any{"run": run, "evaluations": evals})
			}

			printRuns(w, []store.Run{run})
			fmt.Fprintln(w)
			printEvaluations(w, evals)

			return nil
		},
	}

	c.Flags().StringVar(&dbPath, "db", "hord.db", "SQLite evaluation history")
	c.Flags().StringVar(&runID, "run", "", "Show the evaluations of this run")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")

	return c
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPROBLEM\tSTATUS\tEVALS\tFAILED\tBEST\tSTARTED")

	for _, r := range runs {
		best := "-"
		if r.BestValue != nil {
			best = fmt.Sprintf("%.6g", *r.BestValue)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.Problem, r.Status, r.MaxEvals, r.Failed, best, r.StartedAt.Format(time.RFC3339))
	}

	_ = tw.Flush()
}

func printEvaluations(w io.Writer, evals []store.EvaluationRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPHASE\tVALUE\tDURATION\tPARAMS")

	for _, e := range evals {
		value := "error: " + e.Error
		if e.Value != nil {
			value = fmt.Sprintf("%.6g", *e.Value)
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\n",
			e.Index, e.Phase, value, time.Duration(e.DurationMS)*time.Millisecond, e.Params)
	}

	_ = tw.Flush()
}
