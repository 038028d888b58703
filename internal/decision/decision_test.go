package decision

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bimattr/internal/units"
)

func TestDecision_Answer(t *testing.T) {
	d := New("Enter u_value of Wall w1", WithKey("Wall_w1.u_value"), WithUnit(units.MustParse("W/m2K")))
	assert.Equal(t, "Wall_w1.u_value", d.Key())
	assert.Equal(t, "Enter u_value of Wall w1", d.Question())
	assert.False(t, d.Settled())

	_, err := d.Value()
	assert.True(t, eris.Is(err, ErrUnsettled))

	require.NoError(t, d.Answer(0.28))
	assert.True(t, d.Settled())
	assert.Equal(t, StatusAnswered, d.Status())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, units.New(0.28, units.MustParse("W/m2K")), v)

	assert.True(t, eris.Is(d.Answer(1), ErrSettled))
}

func TestDecision_Answer_UnitMismatch(t *testing.T) {
	d := New("mass", WithUnit(units.MustParse("kg")))
	err := d.Answer(units.New(1, units.MustParse("m")))
	assert.True(t, eris.Is(err, units.ErrIncompatible))
	assert.False(t, d.Settled())

	err = d.Answer("heavy")
	assert.True(t, eris.Is(err, units.ErrNotNumeric))
	assert.False(t, d.Settled())
}

func TestDecision_Skip(t *testing.T) {
	d := New("optional", AllowSkip(true), Persist(true))
	assert.True(t, d.Persists())
	require.NoError(t, d.Skip())
	assert.Equal(t, StatusSkipped, d.Status())
	v, err := d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, eris.Is(d.Skip(), ErrSettled))

	strict := New("required")
	assert.True(t, eris.Is(strict.Skip(), ErrSkipNotAllowed))
	assert.False(t, strict.Settled())
}

func TestDecision_ConcurrentAnswer(t *testing.T) {
	d := New("race")
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			errs <- d.Answer(v)
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "open", StatusOpen.String())
	assert.Equal(t, "answered", StatusAnswered.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
}
