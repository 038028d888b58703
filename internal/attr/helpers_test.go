package attr

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/bimattr/internal/source"
)

type testEntity struct {
	guid   string
	typ    string
	src    source.Entity
	finder Finder
	enrich Enrichment
	store  *Store
}

func (e *testEntity) GUID() string           { return e.guid }
func (e *testEntity) TypeName() string       { return e.typ }
func (e *testEntity) Source() source.Entity  { return e.src }
func (e *testEntity) Finder() Finder         { return e.finder }
func (e *testEntity) Enrichment() Enrichment { return e.enrich }
func (e *testEntity) Attributes() *Store     { return e.store }

// newEntity registers a one-off type with fields and returns an entity of it.
func newEntity(t *testing.T, src source.Entity, fields ...*Descriptor) *testEntity {
	t.Helper()
	typ, err := NewRegistry().Register("Thing", fields...)
	require.NoError(t, err)
	guid := "e1"
	if src != nil {
		guid = src.GUID()
	}
	e := &testEntity{guid: guid, typ: typ.Name(), src: src}
	e.store = NewStore(typ, e)
	return e
}

func element(tables map[string]map[string]any) *source.Element {
	return source.NewElement("e1", "IfcBuildingElementProxy", "proxy", "Test Tool", tables)
}

type fakeFinder struct {
	values map[string]any
	calls  int
}

func (f *fakeFinder) Find(_ string, _ source.Entity, field string) (any, error) {
	f.calls++
	if v, ok := f.values[field]; ok {
		return v, nil
	}
	return nil, eris.Wrap(ErrNotFound, "fake finder")
}

type fakeEnrichment map[string]any

func (f fakeEnrichment) Lookup(_, field string) (any, bool) {
	v, ok := f[field]
	return v, ok
}

// observeLogs swaps the global logger for one that records warnings.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}
