package attr

import (
	"math"
	"reflect"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bimattr/internal/units"
)

// Provider is one lookup strategy of the pipeline. A miss is reported with
// an error for which IsMiss is true.
type Provider interface {
	Source() Source
	Provide(e Entity, field string) (any, error)
}

type propertySetProvider struct {
	ref propertyRef
}

func (p *propertySetProvider) Source() Source { return SourcePropertySet }

func (p *propertySetProvider) Provide(e Entity, _ string) (any, error) {
	src := e.Source()
	if src == nil {
		return nil, eris.Wrap(ErrNotFound, "attr: no source entity")
	}
	return src.Property(p.ref.table, p.ref.property)
}

type associationProvider struct {
	ref propertyRef
}

func (p *associationProvider) Source() Source { return SourceAssociation }

func (p *associationProvider) Provide(e Entity, _ string) (any, error) {
	src := e.Source()
	if src == nil {
		return nil, eris.Wrap(ErrNotFound, "attr: no source entity")
	}
	assoc, ok := src.Association()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "attr: %s has no association", src.GUID())
	}
	return assoc.Property(p.ref.table, p.ref.property)
}

type finderProvider struct{}

func (finderProvider) Source() Source { return SourceFinder }

func (finderProvider) Provide(e Entity, field string) (any, error) {
	f := e.Finder()
	if f == nil || e.Source() == nil {
		return nil, eris.Wrap(ErrNotFound, "attr: no finder")
	}
	return f.Find(e.TypeName(), e.Source(), field)
}

type patternProvider struct {
	patterns []*regexp.Regexp
	// unit is the descriptor unit matches are compared in.
	unit units.Unit
}

func (p *patternProvider) Source() Source { return SourcePattern }

// Provide returns the common value of all matching properties. Disagreeing
// matches yield an *AmbiguousError.
func (p *patternProvider) Provide(e Entity, field string) (any, error) {
	src := e.Source()
	if src == nil {
		return nil, eris.Wrap(ErrNotFound, "attr: no source entity")
	}

	var distinct []any
	for _, prop := range src.Properties() {
		if !p.match(prop.Name) {
			continue
		}
		if !p.contains(distinct, prop.Value) {
			distinct = append(distinct, prop.Value)
		}
	}

	switch len(distinct) {
	case 0:
		return nil, eris.Wrapf(ErrNotFound, "attr: no property matches patterns of %s", field)
	case 1:
		return distinct[0], nil
	}
	zap.L().Warn("attr: ambiguous pattern match",
		zap.String("type", e.TypeName()),
		zap.String("guid", e.GUID()),
		zap.String("field", field),
		zap.Any("values", distinct),
	)
	return nil, &AmbiguousError{Field: field, Values: distinct}
}

func (p *patternProvider) match(name string) bool {
	for _, re := range p.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (p *patternProvider) contains(vals []any, v any) bool {
	for _, x := range vals {
		if sameValue(x, v, p.unit) {
			return true
		}
	}
	return false
}

// sameValue compares numeric values by magnitude, in u when u is set, so
// 1 and 1.0 or 250 mm and 0.25 m agree. Other values must be deeply equal.
func sameValue(a, b any, u units.Unit) bool {
	qa, okA := numeric(a, u)
	qb, okB := numeric(b, u)
	switch {
	case okA && okB:
	case okA || okB:
		return false
	default:
		return reflect.DeepEqual(a, b)
	}

	if qa.Unit.IsZero() || qb.Unit.IsZero() {
		return qa.Unit.IsZero() && qb.Unit.IsZero() && closeTo(qa.Value, qb.Value)
	}
	cb, err := qb.To(qa.Unit)
	if err != nil {
		return false
	}
	return closeTo(qa.Value, cb.Value)
}

func numeric(v any, u units.Unit) (units.Quantity, bool) {
	if !u.IsZero() {
		attached, err := units.Attach(v, u)
		if err != nil {
			return units.Quantity{}, false
		}
		q, ok := attached.(units.Quantity)
		return q, ok
	}
	switch q := v.(type) {
	case units.Quantity:
		return q, true
	case *units.Quantity:
		if q != nil {
			return *q, true
		}
	}
	if f, ok := units.Scalar(v); ok {
		return units.Quantity{Value: f}, true
	}
	return units.Quantity{}, false
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

type functionProvider struct {
	fns []Func
}

func (p *functionProvider) Source() Source { return SourceFunction }

// Provide returns the first non-nil function result. Failing functions are
// logged and skipped unless the failure is fatal.
func (p *functionProvider) Provide(e Entity, field string) (any, error) {
	for i, fn := range p.fns {
		v, err := fn(e, field)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			if !IsMiss(err) {
				zap.L().Warn("attr: function failed",
					zap.String("type", e.TypeName()),
					zap.String("guid", e.GUID()),
					zap.String("field", field),
					zap.Int("function", i),
					zap.Error(err),
				)
			}
			continue
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "attr: no function produced %s", field)
}

type enrichmentProvider struct{}

func (enrichmentProvider) Source() Source { return SourceEnrichment }

func (enrichmentProvider) Provide(e Entity, field string) (any, error) {
	en := e.Enrichment()
	if en == nil {
		return nil, eris.Wrap(ErrNotFound, "attr: no enrichment")
	}
	v, ok := en.Lookup(e.GUID(), field)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "attr: no enrichment for %s", field)
	}
	return v, nil
}

type defaultProvider struct {
	value any
}

func (p *defaultProvider) Source() Source { return SourceDefault }

func (p *defaultProvider) Provide(Entity, string) (any, error) {
	return p.value, nil
}
