package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/enrich"
	"github.com/sells-group/bimattr/internal/finder"
	"github.com/sells-group/bimattr/internal/source"
	"github.com/sells-group/bimattr/internal/units"
)

const testModel = `
tool: "Autodesk Revit 2021 (ENU)"
elements:
  - guid: wall-1
    ifc_type: IfcWallStandardCase
    name: Exterior wall
    property_sets:
      Pset_WallCommon:
        IsExternal: true
      Qto_WallBaseQuantities:
        NetSideArea: 10
        Width: {value: 240, unit: mm}
    association:
      guid: concrete
      ifc_type: IfcMaterial
      property_sets:
        Pset_MaterialCommon:
          MassDensity: "2400 kg/m3"
  - guid: zone-1
    ifc_type: IfcSpace
    name: Office
    footprint: [[0, 0], [4, 0], [4, 3], [0, 3]]
  - guid: zone-2
    ifc_type: IfcSpace
    property_sets:
      Qto_SpaceBaseQuantities:
        NetFloorArea: 20
        Height: 2.5
  - guid: pump-1
    ifc_type: IfcPump
    property_sets:
      Pset_PumpTypeCommon:
        FlowRateRange: [2, 3.5]
  - guid: pipe-1
    ifc_type: IfcPipeSegment
    property_sets:
      Revit Dimensions:
        Segment Length: 6.5
  - guid: door-1
    ifc_type: IfcDoor
`

func testRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	types := attr.NewRegistry()
	require.NoError(t, RegisterAll(types))
	return NewRegistry(types, opts...)
}

func loadModel(t *testing.T, r *Registry) []*Element {
	t.Helper()
	doc, err := source.Parse([]byte(testModel))
	require.NoError(t, err)
	els, err := r.FromDocument(doc)
	require.NoError(t, err)
	return els
}

func get(t *testing.T, e *Element, field string) (any, bool) {
	t.Helper()
	v, ok, err := e.Attributes().Get(field)
	require.NoError(t, err)
	return v, ok
}

func TestFromDocument(t *testing.T) {
	r := testRegistry(t)
	els := loadModel(t, r)

	require.Len(t, els, 5)
	for i, e := range els {
		assert.Equal(t, i+1, e.ID())
	}
	assert.Equal(t, TypeWall, els[0].TypeName())
	assert.Equal(t, "Exterior wall", els[0].Name())
	assert.Nil(t, r.ByGUID("door-1"))
	assert.Same(t, els[1], r.ByGUID("zone-1"))
	assert.Len(t, r.Elements(), 5)
	assert.Nil(t, els[0].Finder())
	assert.Nil(t, els[0].Enrichment())
}

func TestRegistry_New_Errors(t *testing.T) {
	r := testRegistry(t)

	_, err := r.New("Door", "d", nil)
	assert.ErrorContains(t, err, "unknown type")

	_, err = r.New(TypeWall, "", nil)
	assert.ErrorContains(t, err, "without guid")

	_, err = r.New(TypeWall, "w", nil)
	require.NoError(t, err)
	_, err = r.New(TypeWall, "w", nil)
	assert.ErrorContains(t, err, "duplicate guid")
}

func TestWall_MassFromDependentFields(t *testing.T) {
	r := testRegistry(t)
	wall := loadModel(t, r)[0]

	v, ok := get(t, wall, "mass")
	require.True(t, ok)
	q := v.(units.Quantity)
	assert.Equal(t, units.MustParse("kg"), q.Unit)
	assert.InDelta(t, 5760.0, q.Value, 1e-6)

	v, ok = get(t, wall, "is_external")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = get(t, wall, "u_value")
	assert.False(t, ok)
}

func TestThermalZone_DefaultsAndFootprint(t *testing.T) {
	r := testRegistry(t)
	zone := loadModel(t, r)[1]

	v, ok := get(t, zone, "t_set_heat")
	require.True(t, ok)
	assert.Equal(t, units.New(21, units.MustParse("degC")), v)
	assert.Empty(t, zone.Attributes().PendingDecisions())

	v, ok = get(t, zone, "net_area")
	require.True(t, ok)
	assert.InDelta(t, 12.0, v.(units.Quantity).Value, 1e-9)

	st, err := zone.Attributes().Status("perimeter")
	require.NoError(t, err)
	assert.Equal(t, attr.StatusAvailable, st)
	v, _ = get(t, zone, "perimeter")
	assert.InDelta(t, 14.0, v.(units.Quantity).Value, 1e-9)

	_, ok = get(t, zone, "volume")
	assert.False(t, ok)
}

func TestThermalZone_VolumeFromQuantities(t *testing.T) {
	r := testRegistry(t)
	zone := loadModel(t, r)[2]

	v, ok := get(t, zone, "volume")
	require.True(t, ok)
	assert.InDelta(t, 50.0, v.(units.Quantity).Value, 1e-9)
	assert.Equal(t, units.MustParse("m3"), v.(units.Quantity).Unit)

	_, ok = get(t, zone, "perimeter")
	assert.False(t, ok)
}

func TestPump_LargestFlowRate(t *testing.T) {
	r := testRegistry(t)
	pump := loadModel(t, r)[3]

	v, ok := get(t, pump, "rated_volume_flow")
	require.True(t, ok)
	assert.Equal(t, units.New(3.5, units.MustParse("m3/h")), v)
}

func TestPipe_FinderTemplate(t *testing.T) {
	f, err := finder.New([]finder.ToolConfig{{
		Name:  "autodesk_revit",
		Match: []string{"(?i)revit"},
		Templates: map[string]map[string]finder.Rule{
			TypePipe: {"length": {Table: "Revit Dimensions", Property: "Segment Length"}},
		},
	}})
	require.NoError(t, err)
	r := testRegistry(t, WithFinder(f))
	pipe := loadModel(t, r)[4]

	v, ok := get(t, pipe, "length")
	require.True(t, ok)
	assert.Equal(t, units.New(6.5, units.MustParse("m")), v)
	rec, _ := pipe.Attributes().Record("length")
	assert.Equal(t, attr.SourceFinder, rec.Source)

	v, ok = get(t, pipe, "roughness")
	require.True(t, ok)
	assert.Equal(t, units.New(0.0015, units.MustParse("mm")), v)
}

func TestThermalZone_UsageFromEnrichment(t *testing.T) {
	tbl := enrich.New(map[string]map[string]any{"zone-1": {"usage": "Single office"}})
	r := testRegistry(t, WithEnrichment(tbl))
	zone := loadModel(t, r)[1]

	v, ok := get(t, zone, "usage")
	require.True(t, ok)
	assert.Equal(t, "Single office", v)

	other := r.ByGUID("zone-2")
	dec, err := other.Attributes().Request("usage")
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.True(t, dec.AllowsSkip())
	assert.Equal(t, "ThermalZone_zone-2.usage", dec.Key())
}

func TestLargest(t *testing.T) {
	m := units.MustParse("m")
	largest := Largest("m")

	v, err := largest([]any{units.New(2, m), units.New(300, units.MustParse("mm"))})
	require.NoError(t, err)
	assert.Equal(t, units.New(2, m), v)

	// Bare numbers are read in the target unit before comparing.
	v, err = largest([]any{100, units.New(0.2, m)})
	require.NoError(t, err)
	assert.Equal(t, units.New(100, m), v)

	v, err = largest([]any{units.New(500, units.MustParse("mm")), 0.2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.(units.Quantity).Value, 1e-12)

	v, err = largest(4.0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	_, err = largest([]any{"a"})
	assert.Error(t, err)

	_, err = largest([]any{units.New(1, units.MustParse("kg"))})
	assert.Error(t, err)
}

func TestThermalZone_PerimeterPropertyBeatsFootprint(t *testing.T) {
	const model = `
elements:
  - guid: zone-9
    ifc_type: IfcSpace
    footprint: [[0, 0], [4, 0], [4, 3], [0, 3]]
    property_sets:
      Qto_SpaceBaseQuantities:
        GrossPerimeter: 50
`
	r := testRegistry(t)
	doc, err := source.Parse([]byte(model))
	require.NoError(t, err)
	els, err := r.FromDocument(doc)
	require.NoError(t, err)
	zone := els[0]

	v, ok := get(t, zone, "net_area")
	require.True(t, ok)
	assert.InDelta(t, 12.0, v.(units.Quantity).Value, 1e-9)

	v, ok = get(t, zone, "perimeter")
	require.True(t, ok)
	assert.Equal(t, units.New(50, units.MustParse("m")), v)
	rec, _ := zone.Attributes().Record("perimeter")
	assert.Equal(t, attr.SourcePropertySet, rec.Source)
}

func TestTypeForIfc(t *testing.T) {
	typ, ok := TypeForIfc("IfcSpace")
	assert.True(t, ok)
	assert.Equal(t, TypeThermalZone, typ)
	_, ok = TypeForIfc("IfcDoor")
	assert.False(t, ok)
}

func TestRegisterAll_Twice(t *testing.T) {
	types := attr.NewRegistry()
	require.NoError(t, RegisterAll(types))
	assert.Error(t, RegisterAll(types))
}
