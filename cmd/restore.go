package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/bimattr/internal/resolve"
	"github.com/sells-group/bimattr/internal/store"
)

var (
	restoreIn  inputs
	restoreRun string
	runsLimit  int
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a saved snapshot onto a model",
	Long:  "Applies the available attributes of a saved snapshot to a model, then resolves whatever the snapshot did not cover.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("restore"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, err = runRestore(ctx, st, restoreIn.withDefaults(), restoreRun, os.Stdout)
		return err
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List saved snapshots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("restore"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreIn.Model, "model", "", "model file (YAML)")
	restoreCmd.Flags().StringVar(&restoreIn.Templates, "templates", "", "finder templates file")
	restoreCmd.Flags().StringVar(&restoreIn.Enrichment, "enrichment", "", "enrichment table file")
	restoreCmd.Flags().StringVar(&restoreIn.Answers, "answers", "", "prepared answers (YAML or report XLSX)")
	restoreCmd.Flags().StringVar(&restoreRun, "run", "", "snapshot run id")
	_ = restoreCmd.MarkFlagRequired("model")
	_ = restoreCmd.MarkFlagRequired("run")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "max number of snapshots to display")

	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(runsCmd)
}

// runRestore loads the model, applies snapshot runID and resolves the rest.
func runRestore(ctx context.Context, st store.Store, in inputs, runID string, out io.Writer) (*resolve.Report, error) {
	reg, err := loadModel(in)
	if err != nil {
		return nil, err
	}
	restored, err := resolve.Load(ctx, st, runID, reg)
	if err != nil {
		return nil, err
	}
	answerer, err := loadAnswerer(in.Answers, cfg.Decisions.SkipMissing)
	if err != nil {
		return nil, err
	}

	rep, err := resolve.New(cfg.Resolve, answerer).Run(ctx, reg)
	if err != nil {
		return nil, err
	}
	_, _ = fmt.Fprintf(out, "restored %d fields from %s\n", restored, runID)
	formatSummary(out, rep)
	formatElements(out, reg.Elements())
	return rep, nil
}

func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODEL\tRECORDS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t-------")

	for _, r := range runs {
		model := r.Model
		if len(model) > 40 {
			model = "..." + model[len(model)-37:]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			truncateID(r.ID),
			model,
			r.Records,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
