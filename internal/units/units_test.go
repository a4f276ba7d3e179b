package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidAngleUnit(t *testing.T) {
	assert.True(t, IsValidAngleUnit("rad"))
	assert.True(t, IsValidAngleUnit("deg"))
	assert.False(t, IsValidAngleUnit("grad"))
	assert.False(t, IsValidAngleUnit(""))
}

func TestConvertAngle(t *testing.T) {
	testCases := []struct {
		name  string
		rad   float64
		units string
		want  float64
	}{
		{"radians passthrough", 1.25, Radians, 1.25},
		{"half turn in degrees", math.Pi, Degrees, 180},
		{"negative quarter turn", -math.Pi / 2, Degrees, -90},
		{"unknown unit", 2, "furlongs", 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ConvertAngle(tc.rad, tc.units), 1e-9)
		})
	}
}

func TestFrameIntervalMsec(t *testing.T) {
	got, err := FrameIntervalMsec(30)
	require.NoError(t, err)
	assert.InDelta(t, 33.333333, got, 1e-5)

	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := FrameIntervalMsec(bad)
		assert.Error(t, err, "fps %v", bad)
	}
}
