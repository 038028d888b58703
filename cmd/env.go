package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/decision"
	"github.com/sells-group/bimattr/internal/element"
	"github.com/sells-group/bimattr/internal/enrich"
	"github.com/sells-group/bimattr/internal/finder"
	"github.com/sells-group/bimattr/internal/report"
	"github.com/sells-group/bimattr/internal/source"
	"github.com/sells-group/bimattr/internal/store"
)

// inputs names the files a resolution run reads. Empty paths fall back to
// the configured ones.
type inputs struct {
	Model      string
	Templates  string
	Enrichment string
	Answers    string
}

func (in inputs) withDefaults() inputs {
	if in.Templates == "" {
		in.Templates = cfg.Finder.TemplatesPath
	}
	if in.Enrichment == "" {
		in.Enrichment = cfg.Enrichment.Path
	}
	if in.Answers == "" {
		in.Answers = cfg.Decisions.AnswersPath
	}
	return in
}

func initTypes() (*attr.Registry, error) {
	types := attr.NewRegistry()
	if err := element.RegisterAll(types); err != nil {
		return nil, eris.Wrap(err, "register types")
	}
	return types, nil
}

// loadModel builds the element registry for in.Model with the optional
// finder templates and enrichment table attached.
func loadModel(in inputs) (*element.Registry, error) {
	types, err := initTypes()
	if err != nil {
		return nil, err
	}

	var opts []element.Option
	if in.Templates != "" {
		f, err := finder.Load(in.Templates)
		if err != nil {
			return nil, err
		}
		opts = append(opts, element.WithFinder(f))
	}
	if in.Enrichment != "" {
		t, err := enrich.Load(in.Enrichment)
		if err != nil {
			return nil, err
		}
		zap.L().Info("loaded enrichment table", zap.Int("entities", t.Len()))
		opts = append(opts, element.WithEnrichment(t))
	}

	doc, err := source.Load(in.Model)
	if err != nil {
		return nil, err
	}
	reg := element.NewRegistry(types, opts...)
	els, err := reg.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded model",
		zap.String("path", in.Model),
		zap.String("tool", doc.Tool),
		zap.Int("elements", len(els)),
	)
	return reg, nil
}

// loadAnswerer reads prepared answers from YAML or from the Decisions sheet
// of a report workbook. An empty path yields a nil answerer.
func loadAnswerer(path string, skipMissing bool) (decision.Answerer, error) {
	if path == "" {
		return nil, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		answers, err := report.ReadAnswers(path)
		if err != nil {
			return nil, err
		}
		return decision.NewStaticAnswerer(answers, skipMissing), nil
	}
	a, err := decision.LoadAnswers(path, skipMissing)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bimattr.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
