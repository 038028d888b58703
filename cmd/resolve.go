package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/element"
	"github.com/sells-group/bimattr/internal/report"
	"github.com/sells-group/bimattr/internal/resolve"
)

var (
	resolveIn     inputs
	resolveReport string
	resolveSave   bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve every attribute of a building model",
	Long:  "Loads a model, resolves all attributes through the provider chain, settles decisions from prepared answers, and optionally writes an XLSX report and a snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		_, err := runResolve(ctx, resolveIn.withDefaults(), resolveReportPath(), resolveSave, os.Stdout)
		return err
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveIn.Model, "model", "", "model file (YAML)")
	resolveCmd.Flags().StringVar(&resolveIn.Templates, "templates", "", "finder templates file")
	resolveCmd.Flags().StringVar(&resolveIn.Enrichment, "enrichment", "", "enrichment table file")
	resolveCmd.Flags().StringVar(&resolveIn.Answers, "answers", "", "prepared answers (YAML or report XLSX)")
	resolveCmd.Flags().StringVar(&resolveReport, "report", "", "write an XLSX report to this path")
	resolveCmd.Flags().BoolVar(&resolveSave, "save", false, "persist a snapshot of the resolved attributes")
	_ = resolveCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(resolveCmd)
}

func resolveReportPath() string {
	if resolveReport != "" {
		return resolveReport
	}
	return cfg.Report.Path
}

// runResolve performs one full resolution run and prints its summary.
func runResolve(ctx context.Context, in inputs, reportPath string, save bool, out io.Writer) (*resolve.Report, error) {
	reg, err := loadModel(in)
	if err != nil {
		return nil, err
	}
	answerer, err := loadAnswerer(in.Answers, cfg.Decisions.SkipMissing)
	if err != nil {
		return nil, err
	}

	rep, err := resolve.New(cfg.Resolve, answerer).Run(ctx, reg)
	if err != nil {
		return nil, eris.Wrap(err, "resolve")
	}
	elements := reg.Elements()

	if reportPath != "" {
		if err := report.Write(reportPath, elements, rep); err != nil {
			return nil, err
		}
		zap.L().Info("report written", zap.String("path", reportPath))
	}

	if save {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		run, err := resolve.Save(ctx, st, in.Model, elements)
		if err != nil {
			return nil, err
		}
		_, _ = fmt.Fprintf(out, "snapshot %s\n", run.ID)
	}

	formatSummary(out, rep)
	formatElements(out, elements)
	return rep, nil
}

func formatSummary(out io.Writer, rep *resolve.Report) {
	_, _ = fmt.Fprintf(out, "entities: %d  fields: %d  available: %d  requested: %d  not available: %d\n",
		rep.Entities,
		rep.Fields,
		rep.ByStatus[attr.StatusAvailable],
		rep.ByStatus[attr.StatusRequested],
		rep.ByStatus[attr.StatusNotAvailable],
	)
	_, _ = fmt.Fprintf(out, "decisions: %d answered, %d skipped, %d open\n",
		rep.Decisions.Answered, rep.Decisions.Skipped, rep.Decisions.Open)
	for _, tool := range rep.UnknownTools {
		_, _ = fmt.Fprintf(out, "unknown authoring tool: %s\n", tool)
	}
}

func formatElements(out io.Writer, elements []*element.Element) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GUID\tTYPE\tFIELD\tSTATUS\tSOURCE\tVALUE")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t------\t------\t-----")

	for _, e := range elements {
		attrs := e.Attributes()
		for _, f := range attrs.Fields() {
			rec, err := attrs.Record(f)
			if err != nil {
				continue
			}
			value := ""
			if rec.Status == attr.StatusAvailable && rec.Value != nil {
				value = fmt.Sprint(rec.Value)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncateID(e.GUID()),
				e.TypeName(),
				f,
				rec.Status,
				rec.Source,
				value,
			)
		}
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
