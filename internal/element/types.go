// Package element declares the building entity types (walls, windows,
// pipes, pumps, thermal zones) and their attribute descriptors.
package element

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/units"
)

// Type names.
const (
	TypeWall        = "Wall"
	TypeWindow      = "Window"
	TypePipe        = "Pipe"
	TypePump        = "Pump"
	TypeThermalZone = "ThermalZone"
)

// ifcTypes maps source IFC classes onto entity types.
var ifcTypes = map[string]string{
	"IfcWall":             TypeWall,
	"IfcWallStandardCase": TypeWall,
	"IfcWindow":           TypeWindow,
	"IfcPipeSegment":      TypePipe,
	"IfcPump":             TypePump,
	"IfcSpace":            TypeThermalZone,
}

// TypeForIfc returns the entity type for an IFC class.
func TypeForIfc(ifcType string) (string, bool) {
	t, ok := ifcTypes[ifcType]
	return t, ok
}

// RegisterAll registers every entity type of this package.
func RegisterAll(r *attr.Registry) error {
	for _, register := range []func(*attr.Registry) error{
		RegisterWall,
		RegisterWindow,
		RegisterPipe,
		RegisterPump,
		RegisterThermalZone,
	} {
		if err := register(r); err != nil {
			return err
		}
	}
	return nil
}

// declare builds descriptors, stopping at the first configuration error.
func declare(r *attr.Registry, typeName string, builders ...func() (*attr.Descriptor, error)) error {
	fields := make([]*attr.Descriptor, 0, len(builders))
	for _, build := range builders {
		d, err := build()
		if err != nil {
			return eris.Wrapf(err, "element: declare %s", typeName)
		}
		fields = append(fields, d)
	}
	_, err := r.Register(typeName, fields...)
	return err
}

func field(name string, opts ...attr.Option) func() (*attr.Descriptor, error) {
	return func() (*attr.Descriptor, error) { return attr.NewDescriptor(name, opts...) }
}

// RegisterWall declares the Wall type.
func RegisterWall(r *attr.Registry) error {
	return declare(r, TypeWall,
		field("is_external",
			attr.FromPropertySet("Pset_WallCommon", "IsExternal"),
			attr.WithPatterns(`(?i)^is.?external$`),
		),
		field("u_value",
			attr.WithUnit("W/m2K"),
			attr.WithDescription("thermal transmittance"),
			attr.FromPropertySet("Pset_WallCommon", "ThermalTransmittance"),
			attr.WithPatterns(`(?i)^(u.?value|thermal.?transmittance)$`),
		),
		field("width",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_WallBaseQuantities", "Width"),
			attr.WithPatterns(`(?i)^(width|thickness)$`),
		),
		field("net_area",
			attr.WithUnit("m2"),
			attr.FromPropertySet("Qto_WallBaseQuantities", "NetSideArea"),
			attr.WithPatterns(`(?i)^net.?side.?area$`),
		),
		field("density",
			attr.WithUnit("kg/m3"),
			attr.FromAssociation("Pset_MaterialCommon", "MassDensity"),
		),
		field("heat_capacity",
			attr.WithUnit("J/kgK"),
			attr.FromAssociation("Pset_MaterialThermal", "SpecificHeatCapacity"),
		),
		field("thermal_conduc",
			attr.WithUnit("W/mK"),
			attr.FromAssociation("Pset_MaterialThermal", "ThermalConductivity"),
		),
		field("mass",
			attr.WithUnit("kg"),
			attr.WithFunctions(Product("net_area", "width", "density")),
		),
	)
}

// RegisterWindow declares the Window type.
func RegisterWindow(r *attr.Registry) error {
	return declare(r, TypeWindow,
		field("is_external",
			attr.FromPropertySet("Pset_WindowCommon", "IsExternal"),
			attr.WithDefault(true),
		),
		field("u_value",
			attr.WithUnit("W/m2K"),
			attr.WithDescription("thermal transmittance"),
			attr.FromPropertySet("Pset_WindowCommon", "ThermalTransmittance"),
			attr.WithPatterns(`(?i)^(u.?value|thermal.?transmittance)$`),
		),
		field("g_value",
			attr.WithUnit("dimensionless"),
			attr.WithDescription("solar heat gain coefficient"),
			attr.FromPropertySet("Pset_WindowCommon", "SolarHeatGainTransmittance"),
			attr.WithPatterns(`(?i)^g.?value$`),
		),
		field("net_area",
			attr.WithUnit("m2"),
			attr.FromPropertySet("Qto_WindowBaseQuantities", "Area"),
			attr.WithFunctions(Product("width", "height")),
		),
		field("width",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_WindowBaseQuantities", "Width"),
		),
		field("height",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_WindowBaseQuantities", "Height"),
		),
	)
}

// RegisterPipe declares the Pipe type.
func RegisterPipe(r *attr.Registry) error {
	return declare(r, TypePipe,
		field("length",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_PipeSegmentBaseQuantities", "Length"),
			attr.WithPatterns(`(?i)^length$`),
		),
		field("diameter",
			attr.WithUnit("mm"),
			attr.FromPropertySet("Pset_PipeSegmentTypeCommon", "NominalDiameter"),
			attr.WithPatterns(`(?i)^(nominal.?)?diameter$`, `(?i)^dn$`),
			attr.WithPostProcess(Largest("mm")),
		),
		field("roughness",
			attr.WithUnit("mm"),
			attr.WithPatterns(`(?i)roughness`),
			attr.WithDefault(0.0015),
		),
	)
}

// RegisterPump declares the Pump type.
func RegisterPump(r *attr.Registry) error {
	return declare(r, TypePump,
		field("rated_power",
			attr.WithUnit("kW"),
			attr.FromPropertySet("Pset_ElectricalDeviceCommon", "RatedPower"),
			attr.WithPatterns(`(?i)^(rated|nominal).?power$`),
		),
		field("rated_height",
			attr.WithUnit("m"),
			attr.WithDescription("rated pump head"),
			attr.WithPatterns(`(?i)^(rated|nominal).?(height|head)$`),
		),
		field("rated_volume_flow",
			attr.WithUnit("m3/h"),
			attr.FromPropertySet("Pset_PumpTypeCommon", "FlowRateRange"),
			attr.WithPatterns(`(?i)flow.?rate`),
			attr.WithPostProcess(Largest("m3/h")),
		),
		field("diameter",
			attr.WithUnit("mm"),
			attr.FromPropertySet("Pset_PumpTypeCommon", "ConnectionSize"),
		),
	)
}

// RegisterThermalZone declares the ThermalZone type.
func RegisterThermalZone(r *attr.Registry) error {
	footprint := attr.MultiCalc(FootprintGeometry)
	return declare(r, TypeThermalZone,
		field("t_set_heat",
			attr.WithUnit("degC"),
			attr.WithDescription("heating set point"),
			attr.FromPropertySet("Pset_SpaceThermalRequirements", "SpaceTemperatureMin"),
			attr.WithDefault(21),
		),
		field("t_set_cool",
			attr.WithUnit("degC"),
			attr.WithDescription("cooling set point"),
			attr.FromPropertySet("Pset_SpaceThermalRequirements", "SpaceTemperatureMax"),
			attr.WithDefault(25),
		),
		field("usage",
			attr.WithDescription("room usage"),
			attr.FromPropertySet("Pset_SpaceCommon", "Reference"),
			attr.WithPatterns(`(?i)^(usage|occupancy.?type)$`),
			attr.WithDecisionPolicy(true, true),
		),
		field("net_area",
			attr.WithUnit("m2"),
			attr.FromPropertySet("Qto_SpaceBaseQuantities", "NetFloorArea"),
			attr.WithFunctions(footprint),
		),
		field("perimeter",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_SpaceBaseQuantities", "GrossPerimeter"),
			attr.WithFunctions(footprint),
		),
		field("height",
			attr.WithUnit("m"),
			attr.FromPropertySet("Qto_SpaceBaseQuantities", "Height"),
			attr.WithPatterns(`(?i)^(clear.?)?height$`),
		),
		field("volume",
			attr.WithUnit("m3"),
			attr.FromPropertySet("Qto_SpaceBaseQuantities", "NetVolume"),
			attr.WithFunctions(Product("net_area", "height")),
		),
	)
}

// Product multiplies the magnitudes of other fields, each in its declared
// unit. It yields no value while any factor is unknown.
func Product(fields ...string) attr.Func {
	return func(e attr.Entity, _ string) (any, error) {
		result := 1.0
		for _, f := range fields {
			v, ok, err := e.Attributes().Get(f)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			mag, ok := magnitude(v)
			if !ok {
				return nil, eris.Errorf("element: %s is not numeric", f)
			}
			result *= mag
		}
		return result, nil
	}
}

// FootprintGeometry derives net_area and perimeter from the footprint
// polygon in one pass.
func FootprintGeometry(e attr.Entity) (map[string]any, error) {
	src := e.Source()
	if src == nil {
		return nil, eris.Wrap(attr.ErrNotFound, "element: no source")
	}
	fp, ok := src.Footprint()
	if !ok {
		return nil, eris.Wrapf(attr.ErrNotFound, "element: %s has no footprint", src.GUID())
	}
	return map[string]any{
		"net_area":  math.Abs(fp.Area()),
		"perimeter": fp.Length(),
	}, nil
}

// Largest returns a post-process hook that collapses a list of candidate
// values to the largest one. Candidates are converted to symbol before
// they are compared, so bare numbers count as symbol.
func Largest(symbol string) attr.PostProcess {
	u := units.MustParse(symbol)
	return func(raw any) (any, error) {
		list, ok := raw.([]any)
		if !ok {
			return raw, nil
		}
		var best any
		bestMag := math.Inf(-1)
		for _, v := range list {
			converted, err := units.Attach(v, u)
			if err != nil {
				return nil, eris.Wrapf(err, "element: candidate %v", v)
			}
			q, ok := converted.(units.Quantity)
			if !ok {
				continue
			}
			if q.Value > bestMag {
				best, bestMag = q, q.Value
			}
		}
		return best, nil
	}
}

func magnitude(v any) (float64, bool) {
	if q, ok := v.(units.Quantity); ok {
		return q.Value, true
	}
	return units.Scalar(v)
}
