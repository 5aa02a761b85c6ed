package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEV_Formula(t *testing.T) {
	// model 28%, YES a 22¢, fee 1¢ → +5¢
	ev, err := EV(0.28, 0.22, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, ev, 1e-9)
}

func TestEV_NoSideIsIndependent(t *testing.T) {
	// El lado NO del mismo bracket: 72% a 78¢, fee 1¢ → -7¢.
	// No es el negativo del lado YES — las fees los hacen independientes.
	evNo, err := EV(1-0.28, 1-0.22, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, -0.07, evNo, 1e-9)

	evYes, _ := EV(0.28, 0.22, 0.01)
	assert.NotEqual(t, -evYes, evNo)
}

func TestEV_LinearInProbability(t *testing.T) {
	ev1, _ := EV(0.30, 0.50, 0.01)
	ev2, _ := EV(0.40, 0.50, 0.01)
	ev3, _ := EV(0.50, 0.50, 0.01)
	assert.InDelta(t, ev2-ev1, ev3-ev2, 1e-9)
}

func TestEV_LinearInPrice(t *testing.T) {
	ev1, _ := EV(0.50, 0.20, 0.01)
	ev2, _ := EV(0.50, 0.30, 0.01)
	ev3, _ := EV(0.50, 0.40, 0.01)
	assert.InDelta(t, ev2-ev1, ev3-ev2, 1e-9)
}

func TestEV_ZeroFee(t *testing.T) {
	ev, err := EV(0.60, 0.55, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, ev, 1e-9)
}

func TestEV_RejectsNaN(t *testing.T) {
	_, err := EV(math.NaN(), 0.5, 0.01)
	assert.Error(t, err)

	_, err = EV(0.5, math.NaN(), 0.01)
	assert.Error(t, err)

	_, err = EV(0.5, 0.5, math.NaN())
	assert.Error(t, err)
}

func TestEV_RejectsOutOfRange(t *testing.T) {
	// Nunca se ajusta ni se trata como cero — falla rápido.
	cases := []struct {
		name            string
		prob, price, fee float64
	}{
		{"prob negative", -0.01, 0.5, 0.01},
		{"prob above one", 1.01, 0.5, 0.01},
		{"price negative", 0.5, -0.01, 0.01},
		{"price above one", 0.5, 1.01, 0.01},
		{"fee negative", 0.5, 0.5, -0.01},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EV(tc.prob, tc.price, tc.fee)
			assert.Error(t, err)
		})
	}
}

func TestEV_BoundaryValuesValid(t *testing.T) {
	ev, err := EV(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev)

	ev, err = EV(1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev)
}
