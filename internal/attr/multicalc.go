package attr

import (
	"sort"

	"github.com/rotisserie/eris"
)

// MultiFunc computes several related fields in one pass.
type MultiFunc func(e Entity) (map[string]any, error)

type batch struct {
	fn MultiFunc
}

// MultiCalc wraps fn as a Func. When used for field X it runs fn once and
// returns X's value. Every other returned field that is still unresolved is
// resolved right away through its own pipeline, which takes the computed
// value when it reaches the same MultiCalc. Higher-precedence providers of
// a sibling still win, and fn is not run again for it.
func MultiCalc(fn MultiFunc) Func {
	b := &batch{fn: fn}
	return b.provide
}

func (b *batch) provide(e Entity, field string) (any, error) {
	store := e.Attributes()
	if store == nil {
		return nil, eris.Wrapf(ErrInconsistentState, "attr: %s has no store", e.GUID())
	}
	if v, ok := store.takeSeed(field, b); ok {
		return v, nil
	}

	values, err := b.fn(e)
	if err != nil {
		return nil, err
	}
	siblings := make([]string, 0, len(values))
	for k := range values {
		if k != field {
			siblings = append(siblings, k)
		}
	}
	sort.Strings(siblings)
	for _, k := range siblings {
		if err := store.seedSibling(k, values[k], b); err != nil {
			return nil, err
		}
	}
	return values[field], nil
}
