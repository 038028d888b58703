package units

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Aliases(t *testing.T) {
	u, err := Parse("W/m2K")
	require.NoError(t, err)
	assert.Equal(t, "W/(m**2*K)", u.Symbol)

	_, err = Parse("furlong")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownUnit))
}

func TestQuantity_To(t *testing.T) {
	tests := []struct {
		name string
		in   Quantity
		to   string
		want float64
	}{
		{"grams to kilograms", New(1000, MustParse("g")), "kg", 1},
		{"millimeters to meters", New(250, MustParse("mm")), "m", 0.25},
		{"celsius to kelvin", New(21, MustParse("degC")), "K", 294.15},
		{"kelvin to celsius", New(273.15, MustParse("K")), "degC", 0},
		{"cubic meters per hour to seconds", New(3.6, MustParse("m3/h")), "m3/s", 0.001},
		{"same unit", New(4, MustParse("kW")), "kW", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.To(MustParse(tt.to))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Value, 1e-9)
			assert.Equal(t, MustParse(tt.to), got.Unit)
		})
	}
}

func TestQuantity_To_Incompatible(t *testing.T) {
	_, err := New(1, MustParse("kg")).To(MustParse("m"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrIncompatible))
}

func TestQuantity_MulAndString(t *testing.T) {
	q := New(2, MustParse("m")).Mul(1.5)
	assert.InDelta(t, 3.0, q.Value, 1e-12)
	assert.Equal(t, "3 m", q.String())
	assert.Equal(t, "0.5", New(0.5, MustParse("dimensionless")).String())
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity("0.3 W/m2K")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, q.Value, 1e-12)
	assert.Equal(t, MustParse("W/(m**2*K)"), q.Unit)

	_, err = ParseQuantity("12")
	assert.Error(t, err)
	_, err = ParseQuantity("abc kg")
	assert.Error(t, err)
}

func TestAttach(t *testing.T) {
	kg := MustParse("kg")

	v, err := Attach(5, kg)
	require.NoError(t, err)
	assert.Equal(t, New(5, kg), v)

	v, err = Attach(New(1000, MustParse("g")), kg)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v.(Quantity).Value, 1e-9)

	v, err = Attach("2500 g", kg)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v.(Quantity).Value, 1e-9)

	v, err = Attach("7", kg)
	require.NoError(t, err)
	assert.Equal(t, New(7, kg), v)

	_, err = Attach(New(1, MustParse("m")), kg)
	assert.True(t, eris.Is(err, ErrIncompatible))

	_, err = Attach(true, kg)
	assert.True(t, eris.Is(err, ErrNotNumeric))

	_, err = Attach("heavy", kg)
	assert.True(t, eris.Is(err, ErrNotNumeric))

	_, err = Attach([]any{1, 2}, kg)
	assert.True(t, eris.Is(err, ErrNotNumeric))

	v, err = Attach("heavy", Unit{})
	require.NoError(t, err)
	assert.Equal(t, "heavy", v)

	v, err = Attach(3.0, Unit{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = Attach(nil, kg)
	require.NoError(t, err)
	assert.Nil(t, v)
}
