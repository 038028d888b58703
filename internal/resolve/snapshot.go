package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/element"
	"github.com/sells-group/bimattr/internal/store"
	"github.com/sells-group/bimattr/internal/units"
)

// Snapshot captures the records of every field without resolving any.
// Quantities are split into magnitude and unit symbol. Answers to
// decisions that are not meant to persist are left out.
func Snapshot(elements []*element.Element) ([]store.Record, error) {
	var out []store.Record
	for _, e := range elements {
		attrs := e.Attributes()
		for _, f := range attrs.Fields() {
			rec, err := attrs.Record(f)
			if err != nil {
				return nil, err
			}
			if rec.Source == attr.SourceDecision {
				d, err := attrs.Type().Descriptor(f)
				if err != nil {
					return nil, err
				}
				if !d.Persist() {
					continue
				}
			}
			r := store.Record{
				GUID:   e.GUID(),
				Type:   e.TypeName(),
				Field:  f,
				Status: rec.Status.String(),
				Source: string(rec.Source),
				Value:  rec.Value,
			}
			switch q := rec.Value.(type) {
			case units.Quantity:
				r.Value, r.Unit = q.Value, q.Unit.Symbol
			case *units.Quantity:
				r.Value, r.Unit = q.Value, q.Unit.Symbol
			}
			if rec.Decision != nil {
				r.DecisionKey = rec.Decision.Key()
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Restore applies the available records of a snapshot to the matching
// elements of reg. Records for unknown entities are skipped. It returns the
// number of fields restored.
func Restore(reg *element.Registry, records []store.Record) (int, error) {
	restored := 0
	for _, r := range records {
		st, err := attr.ParseStatus(r.Status)
		if err != nil {
			return restored, eris.Wrapf(err, "resolve: restore %s.%s", r.GUID, r.Field)
		}
		if st != attr.StatusAvailable {
			continue
		}
		e := reg.ByGUID(r.GUID)
		if e == nil || e.TypeName() != r.Type {
			zap.L().Warn("resolve: snapshot entity not in model",
				zap.String("guid", r.GUID),
				zap.String("type", r.Type),
			)
			continue
		}

		v := r.Value
		if r.Unit != "" {
			u, err := units.Parse(r.Unit)
			if err != nil {
				return restored, eris.Wrapf(err, "resolve: restore %s.%s", r.GUID, r.Field)
			}
			if f, ok := units.Scalar(v); ok {
				v = units.New(f, u)
			}
		}
		if err := e.Attributes().Restore(r.Field, v, attr.Source(r.Source)); err != nil {
			return restored, eris.Wrapf(err, "resolve: restore %s.%s", r.GUID, r.Field)
		}
		restored++
	}
	return restored, nil
}

// Save snapshots elements into st under the model name.
func Save(ctx context.Context, st store.Store, model string, elements []*element.Element) (*store.Run, error) {
	records, err := Snapshot(elements)
	if err != nil {
		return nil, err
	}
	run, err := st.SaveRun(ctx, model, records)
	if err != nil {
		return nil, err
	}
	zap.L().Info("resolve: snapshot saved",
		zap.String("run_id", run.ID),
		zap.Int("records", run.Records),
	)
	return run, nil
}

// Load restores the snapshot runID from st into reg.
func Load(ctx context.Context, st store.Store, runID string, reg *element.Registry) (int, error) {
	records, err := st.LoadRecords(ctx, runID)
	if err != nil {
		return 0, err
	}
	return Restore(reg, records)
}
