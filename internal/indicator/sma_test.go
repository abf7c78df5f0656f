package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ramp = []float64{10, 11, 12, 13, 14, 15}

func TestSMASeries(t *testing.T) {
	assert.Equal(t, []float64{11, 12, 13, 14}, SMASeries(ramp, 3))
	assert.Equal(t, []float64{12.5}, SMASeries(ramp, 6))
}

func TestEMASeries(t *testing.T) {
	// seed 11, k = 0.5, then 13, 14, 15
	got := EMASeries(ramp, 3)
	require.Len(t, got, 4)

	want := []float64{11, 12, 13, 14}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "ema[%d]", i)
	}
}

func TestEMASeries_TracksConstantSeries(t *testing.T) {
	flat := []float64{42, 42, 42, 42, 42, 42, 42, 42}
	for _, v := range EMASeries(flat, 4) {
		assert.Equal(t, 42.0, v)
	}
}

func TestShortSeriesYieldZero(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
	}{
		{"fewer points than period", []float64{10, 11}, 5},
		{"zero period", []float64{1, 2}, 0},
		{"negative period", []float64{1, 2}, -3},
		{"empty", nil, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, SMASeries(tt.prices, tt.period))
			assert.Empty(t, EMASeries(tt.prices, tt.period))
			assert.Zero(t, SMA(tt.prices, tt.period))
			assert.Zero(t, EMA(tt.prices, tt.period))
		})
	}
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 14.0, SMA(ramp, 3))
	assert.Equal(t, 12.5, SMA(ramp, 6))
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 14, EMA(ramp, 3), 1e-9)
	assert.InDelta(t, 12.5, EMA(ramp, 6), 1e-9)
}

func TestSmoothing(t *testing.T) {
	assert.InDelta(t, 0.5, Smoothing(3), 1e-12)
	assert.InDelta(t, 2.0/21, Smoothing(20), 1e-12)
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
