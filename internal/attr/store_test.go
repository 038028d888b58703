package attr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bimattr/internal/decision"
	"github.com/sells-group/bimattr/internal/units"
)

func TestStore_Get_CachesAvailable(t *testing.T) {
	calls := 0
	fn := func(Entity, string) (any, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("provider invoked twice")
		}
		return 7.5, nil
	}
	e := newEntity(t, nil, MustDescriptor("width", WithUnit("m"), WithFunctions(fn)))

	for i := 0; i < 3; i++ {
		v, ok, err := e.store.Get("width")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, units.New(7.5, units.MustParse("m")), v)
	}
	assert.Equal(t, 1, calls)
}

func TestStore_Get_NotAvailableIsCached(t *testing.T) {
	calls := 0
	fn := func(Entity, string) (any, error) {
		calls++
		return nil, nil
	}
	e := newEntity(t, nil, MustDescriptor("width", WithFunctions(fn)))

	for i := 0; i < 2; i++ {
		v, ok, err := e.store.Get("width")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	}
	st, err := e.store.Status("width")
	require.NoError(t, err)
	assert.Equal(t, StatusNotAvailable, st)
	assert.Equal(t, 1, calls)
}

func TestStore_UnknownField(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("width"))

	_, _, err := e.store.Get("height")
	assert.True(t, eris.Is(err, ErrUnknownField))
	assert.True(t, eris.Is(e.store.Set("height", 1), ErrUnknownField))
	_, err = e.store.Request("height")
	assert.True(t, eris.Is(err, ErrUnknownField))
	_, err = e.store.Status("height")
	assert.True(t, eris.Is(err, ErrUnknownField))
	_, err = e.store.Record("height")
	assert.True(t, eris.Is(err, ErrUnknownField))
}

func TestStore_Set_UnitRoundTrip(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("mass", WithUnit("kg")))
	kg := units.MustParse("kg")

	require.NoError(t, e.store.Set("mass", 12.0))
	v, ok, err := e.store.Get("mass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, units.New(12, kg), v)

	require.NoError(t, e.store.Set("mass", units.New(1000, units.MustParse("g"))))
	v, _, err = e.store.Get("mass")
	require.NoError(t, err)
	q := v.(units.Quantity)
	assert.Equal(t, kg, q.Unit)
	assert.InDelta(t, 1.0, q.Value, 1e-9)

	err = e.store.Set("mass", units.New(1, units.MustParse("m")))
	assert.True(t, eris.Is(err, units.ErrIncompatible))

	rec, err := e.store.Record("mass")
	require.NoError(t, err)
	assert.Equal(t, SourceSet, rec.Source)
}

func TestStore_Set_OverridesAnyState(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("width"))

	dec, err := e.store.Request("width")
	require.NoError(t, err)
	require.NotNil(t, dec)

	require.NoError(t, e.store.Set("width", 3))
	st, _ := e.store.Status("width")
	assert.Equal(t, StatusAvailable, st)
	assert.Empty(t, e.store.PendingDecisions())
}

func TestStore_Request_DecisionRoundTrip(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("height", WithDescription("clear room height")))

	dec, err := e.store.Request("height")
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "Thing_e1.height", dec.Key())
	assert.Contains(t, dec.Question(), "clear room height")

	again, err := e.store.Request("height")
	require.NoError(t, err)
	assert.Same(t, dec, again)
	assert.Equal(t, []*decision.Decision{dec}, e.store.PendingDecisions())

	v, ok, err := e.store.Get("height")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
	st, _ := e.store.Status("height")
	assert.Equal(t, StatusRequested, st)

	require.NoError(t, dec.Answer(42))
	v, ok, err = e.store.Get("height")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	rec, err := e.store.Record("height")
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, rec.Status)
	assert.Equal(t, SourceDecision, rec.Source)
	assert.Nil(t, rec.Decision)
	assert.Empty(t, e.store.PendingDecisions())

	dec, err = e.store.Request("height")
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestStore_Request_AvailableNeedsNoDecision(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("t_set_heat", WithUnit("degC"), WithDefault(21)))
	dec, err := e.store.Request("t_set_heat")
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestStore_Request_AnswerConvertedToUnit(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("mass", WithUnit("kg")))
	dec, err := e.store.Request("mass")
	require.NoError(t, err)
	assert.Equal(t, units.MustParse("kg"), dec.Unit())

	require.NoError(t, dec.Answer("500 g"))
	v, ok, err := e.store.Get("mass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v.(units.Quantity).Value, 1e-9)
}

func TestStore_Request_SkippedDecisionResolvesEmpty(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("usage", WithDecisionPolicy(true, false)))
	dec, err := e.store.Request("usage")
	require.NoError(t, err)
	assert.True(t, dec.AllowsSkip())
	assert.False(t, dec.Persists())

	require.NoError(t, dec.Skip())
	v, ok, err := e.store.Get("usage")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestStore_InconsistentState(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("width"))
	e.store.records["width"] = &Record{Status: StatusRequested, Value: 3}

	_, _, err := e.store.Get("width")
	assert.True(t, eris.Is(err, ErrInconsistentState))

	e.store.records["width"] = &Record{Status: StatusAvailable, Decision: decision.New("q")}
	_, _, err = e.store.Get("width")
	assert.True(t, eris.Is(err, ErrInconsistentState))

	e.store.records["width"] = &Record{Status: StatusNotAvailable, Decision: decision.New("q")}
	_, _, err = e.store.Get("width")
	assert.True(t, eris.Is(err, ErrInconsistentState))

	e.store.records["width"] = &Record{Status: StatusNotAvailable, Value: 3}
	_, _, err = e.store.Get("width")
	assert.True(t, eris.Is(err, ErrInconsistentState))

	e.store.records["width"] = &Record{Status: StatusUnknown, Decision: decision.New("q")}
	_, _, err = e.store.Get("width")
	assert.True(t, eris.Is(err, ErrInconsistentState))
}

func TestStore_Set_RejectsNonNumericForUnit(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("mass", WithUnit("kg")), MustDescriptor("label"))

	err := e.store.Set("mass", "heavy")
	assert.True(t, eris.Is(err, units.ErrNotNumeric))
	err = e.store.Set("mass", true)
	assert.True(t, eris.Is(err, units.ErrNotNumeric))
	st, _ := e.store.Status("mass")
	assert.Equal(t, StatusUnknown, st)

	require.NoError(t, e.store.Set("label", "heavy"))
	v, ok, err := e.store.Get("label")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "heavy", v)
}

func TestStore_Get_RejectsNonNumericProviderValue(t *testing.T) {
	src := element(map[string]map[string]any{"P": {"Mass": "heavy"}})
	e := newEntity(t, src, MustDescriptor("mass",
		WithUnit("kg"),
		FromPropertySet("P", "Mass"),
		WithDefault(1.0),
	))

	_, ok, err := e.store.Get("mass")
	assert.True(t, eris.Is(err, units.ErrNotNumeric))
	assert.False(t, ok)
	st, _ := e.store.Status("mass")
	assert.Equal(t, StatusUnknown, st)
}

func TestStore_Request_NonNumericAnswerRejected(t *testing.T) {
	e := newEntity(t, nil, MustDescriptor("mass", WithUnit("kg")))
	dec, err := e.store.Request("mass")
	require.NoError(t, err)

	assert.True(t, eris.Is(dec.Answer("heavy"), units.ErrNotNumeric))
	assert.False(t, dec.Settled())
	_, ok, err := e.store.Get("mass")
	require.NoError(t, err)
	assert.False(t, ok)
	st, _ := e.store.Status("mass")
	assert.Equal(t, StatusRequested, st)
}

func TestStore_DefaultEndToEnd(t *testing.T) {
	e := newEntity(t, element(nil), MustDescriptor("t_set_heat",
		WithUnit("degC"),
		FromPropertySet("Pset_SpaceThermalDesign", "HeatingDryBulbTemperature"),
		WithPatterns("(?i)heating.*setpoint"),
		WithDefault(21),
	))
	e.finder = &fakeFinder{}
	e.enrich = fakeEnrichment{}

	v, ok, err := e.store.Get("t_set_heat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, units.New(21, units.MustParse("degC")), v)

	rec, _ := e.store.Record("t_set_heat")
	assert.Equal(t, StatusAvailable, rec.Status)
	assert.Equal(t, SourceDefault, rec.Source)

	decs, err := e.store.RequestMissing()
	require.NoError(t, err)
	assert.Empty(t, decs)
	assert.Empty(t, e.store.PendingDecisions())
}

func TestStore_CycleIsAMiss(t *testing.T) {
	var self Func = func(e Entity, field string) (any, error) {
		v, _, err := e.Attributes().Get(field)
		return v, err
	}
	e := newEntity(t, nil, MustDescriptor("width", WithFunctions(self), WithDefault(2.0)))

	v, ok, err := e.store.Get("width")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestStore_DependentField(t *testing.T) {
	volume := func(e Entity, _ string) (any, error) {
		a, ok, err := e.Attributes().Get("area")
		if err != nil || !ok {
			return nil, err
		}
		h, ok, err := e.Attributes().Get("height")
		if err != nil || !ok {
			return nil, err
		}
		return a.(units.Quantity).Value * h.(units.Quantity).Value, nil
	}
	e := newEntity(t, nil,
		MustDescriptor("area", WithUnit("m2"), WithDefault(10.0)),
		MustDescriptor("height", WithUnit("m"), WithDefault(2.5)),
		MustDescriptor("volume", WithUnit("m3"), WithFunctions(volume)),
	)

	require.NoError(t, e.store.ResolveAll())
	v, ok, err := e.store.Get("volume")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 25.0, v.(units.Quantity).Value, 1e-9)
	assert.Equal(t, []string{"area", "height", "volume"}, e.store.Fields())
}

func TestStore_RequestMissing(t *testing.T) {
	e := newEntity(t, nil,
		MustDescriptor("a", WithDefault(1)),
		MustDescriptor("b"),
		MustDescriptor("c"),
	)
	decs, err := e.store.RequestMissing()
	require.NoError(t, err)
	require.Len(t, decs, 2)
	assert.Equal(t, "Thing_e1.b", decs[0].Key())
	assert.Equal(t, "Thing_e1.c", decs[1].Key())
	assert.Equal(t, decs, e.store.PendingDecisions())
}

func TestStatus_StringAndParse(t *testing.T) {
	for _, st := range []Status{StatusUnknown, StatusRequested, StatusAvailable, StatusNotAvailable} {
		got, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	assert.Equal(t, "INVALID", Status(99).String())
	_, err := ParseStatus("MAYBE")
	assert.Error(t, err)
}
