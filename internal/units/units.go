// Package units implements the physical unit table used to enforce and
// convert attribute values.
package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrUnknownUnit is returned when a unit symbol is not in the table.
	ErrUnknownUnit = eris.New("units: unknown unit")
	// ErrIncompatible is returned when two units have different dimensions.
	ErrIncompatible = eris.New("units: incompatible units")
	// ErrNotNumeric is returned when a value that cannot carry a unit is
	// attached to one.
	ErrNotNumeric = eris.New("units: value is not numeric")
)

// Dimension holds SI base exponents: m, kg, s, K, A, mol, cd.
type Dimension [7]int8

// Unit is a symbol with a linear (affine for temperatures) mapping onto
// its SI base unit: base = value*Factor + Offset.
type Unit struct {
	Symbol string
	Dim    Dimension
	Factor float64
	Offset float64
}

// IsZero reports whether u is the absent unit.
func (u Unit) IsZero() bool {
	return u.Symbol == "" && u.Factor == 0
}

func (u Unit) String() string {
	return u.Symbol
}

var (
	dimless        = Dimension{}
	dimLength      = Dimension{1, 0, 0, 0, 0, 0, 0}
	dimArea        = Dimension{2, 0, 0, 0, 0, 0, 0}
	dimVolume      = Dimension{3, 0, 0, 0, 0, 0, 0}
	dimMass        = Dimension{0, 1, 0, 0, 0, 0, 0}
	dimTime        = Dimension{0, 0, 1, 0, 0, 0, 0}
	dimTemperature = Dimension{0, 0, 0, 1, 0, 0, 0}
	dimPower       = Dimension{2, 1, -3, 0, 0, 0, 0}
	dimEnergy      = Dimension{2, 1, -2, 0, 0, 0, 0}
	dimPressure    = Dimension{-1, 1, -2, 0, 0, 0, 0}
	dimDensity     = Dimension{-3, 1, 0, 0, 0, 0, 0}
	dimFlow        = Dimension{3, 0, -1, 0, 0, 0, 0}
	dimUValue      = Dimension{0, 1, -3, -1, 0, 0, 0}
	dimConductiv   = Dimension{1, 1, -3, -1, 0, 0, 0}
	dimHeatCap     = Dimension{2, 0, -2, -1, 0, 0, 0}
)

var table = map[string]Unit{}

func def(dim Dimension, factor, offset float64, symbols ...string) {
	for _, s := range symbols {
		table[s] = Unit{Symbol: symbols[0], Dim: dim, Factor: factor, Offset: offset}
	}
}

func init() {
	def(dimless, 1, 0, "dimensionless", "1", "-")
	def(dimless, 0.01, 0, "percent", "%")

	def(dimLength, 1, 0, "m", "meter", "metre")
	def(dimLength, 1e-3, 0, "mm", "millimeter")
	def(dimLength, 1e-2, 0, "cm", "centimeter")
	def(dimLength, 1e3, 0, "km", "kilometer")
	def(dimArea, 1, 0, "m**2", "m2", "m^2")
	def(dimArea, 1e-6, 0, "mm**2", "mm2", "mm^2")
	def(dimVolume, 1, 0, "m**3", "m3", "m^3")
	def(dimVolume, 1e-3, 0, "l", "L", "liter")

	def(dimMass, 1, 0, "kg", "kilogram")
	def(dimMass, 1e-3, 0, "g", "gram")
	def(dimMass, 1e3, 0, "t", "tonne")

	def(dimTime, 1, 0, "s", "second")
	def(dimTime, 60, 0, "min", "minute")
	def(dimTime, 3600, 0, "h", "hour")

	def(dimTemperature, 1, 0, "K", "kelvin")
	def(dimTemperature, 1, 273.15, "degC", "°C", "celsius")

	def(dimPower, 1, 0, "W", "watt")
	def(dimPower, 1e3, 0, "kW", "kilowatt")
	def(dimEnergy, 1, 0, "J", "joule")
	def(dimEnergy, 3.6e6, 0, "kWh")
	def(dimPressure, 1, 0, "Pa", "pascal")
	def(dimPressure, 1e3, 0, "kPa")
	def(dimPressure, 1e5, 0, "bar")
	def(dimDensity, 1, 0, "kg/m**3", "kg/m3", "kg/m^3")
	def(dimFlow, 1, 0, "m**3/s", "m3/s")
	def(dimFlow, 1.0/3600, 0, "m**3/h", "m3/h")
	def(dimFlow, 1e-3, 0, "l/s", "L/s")
	def(dimUValue, 1, 0, "W/(m**2*K)", "W/m2K", "W/(m2K)", "W/m^2K")
	def(dimConductiv, 1, 0, "W/(m*K)", "W/mK")
	def(dimHeatCap, 1, 0, "J/(kg*K)", "J/kgK")
}

// Parse looks up a unit by symbol or alias.
func Parse(symbol string) (Unit, error) {
	u, ok := table[strings.TrimSpace(symbol)]
	if !ok {
		return Unit{}, eris.Wrapf(ErrUnknownUnit, "units: parse %q", symbol)
	}
	return u, nil
}

// MustParse is Parse for package-level unit constants; it panics on error.
func MustParse(symbol string) Unit {
	u, err := Parse(symbol)
	if err != nil {
		panic(err)
	}
	return u
}

// Compatible reports whether a and b measure the same dimension.
func Compatible(a, b Unit) bool {
	return a.Dim == b.Dim
}

// Quantity is a magnitude expressed in a unit.
type Quantity struct {
	Value float64
	Unit  Unit
}

// New returns a quantity of v in u.
func New(v float64, u Unit) Quantity {
	return Quantity{Value: v, Unit: u}
}

// To converts q into u.
func (q Quantity) To(u Unit) (Quantity, error) {
	if !Compatible(q.Unit, u) {
		return Quantity{}, eris.Wrapf(ErrIncompatible, "units: convert %s to %s", q.Unit.Symbol, u.Symbol)
	}
	if q.Unit == u {
		return q, nil
	}
	base := q.Value*q.Unit.Factor + q.Unit.Offset
	return Quantity{Value: (base - u.Offset) / u.Factor, Unit: u}, nil
}

// Mul scales the magnitude of q by f.
func (q Quantity) Mul(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'g', -1, 64)
	if q.Unit.Symbol == "" || q.Unit.Symbol == "dimensionless" {
		return v
	}
	return fmt.Sprintf("%s %s", v, q.Unit.Symbol)
}

// ParseQuantity reads strings like "0.3 W/m2K" or "21 degC".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return Quantity{}, eris.Errorf("units: quantity %q has no unit", s)
	}
	v, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil {
		return Quantity{}, eris.Wrapf(err, "units: parse magnitude of %q", s)
	}
	u, err := Parse(s[idx+1:])
	if err != nil {
		return Quantity{}, err
	}
	return New(v, u), nil
}

// Scalar converts common numeric kinds to float64.
func Scalar(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Attach enforces u on v. Bare scalars are wrapped as u, quantities are
// converted and rejected when their dimension differs. Other values are
// rejected with ErrNotNumeric. Without a unit v passes through unchanged.
func Attach(v any, u Unit) (any, error) {
	if u.IsZero() || v == nil {
		return v, nil
	}
	switch q := v.(type) {
	case Quantity:
		return q.To(u)
	case *Quantity:
		if q == nil {
			return nil, nil
		}
		return q.To(u)
	case string:
		if pq, err := ParseQuantity(q); err == nil {
			return pq.To(u)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(q), 64); err == nil {
			return New(f, u), nil
		}
		return nil, eris.Wrapf(ErrNotNumeric, "units: attach %s to %q", u.Symbol, q)
	}
	if f, ok := Scalar(v); ok {
		return New(f, u), nil
	}
	return nil, eris.Wrapf(ErrNotNumeric, "units: attach %s to %T", u.Symbol, v)
}
