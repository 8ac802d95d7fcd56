package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestComputeDarknessSurcharge(t *testing.T) {
	q := Default().Compute(10, 20, 19999)

	assert.InDelta(t, 0.5, q.Liters, tolerance)
	assert.True(t, q.Dark)
	assert.InDelta(t, 1.0175, q.Price, tolerance)
	assert.InDelta(t, 0.5*1.85*1.10, q.Price, tolerance)
}

func TestComputeHeatDerate(t *testing.T) {
	q := Default().Compute(10, 30, 25000)

	assert.InDelta(t, 10*0.05*0.9, q.Liters, tolerance)
	assert.InDelta(t, 0.45, q.Liters, tolerance)
	assert.False(t, q.Dark)
	assert.InDelta(t, 0.45*1.85, q.Price, tolerance)
}

func TestComputeThresholdsAreStrict(t *testing.T) {
	p := Default()

	// exactly at the temperature threshold: not derated
	q := p.Compute(10, 28, 30000)
	assert.InDelta(t, 0.5, q.Liters, tolerance)

	// exactly at the light threshold: not dark
	q = p.Compute(10, 20, 20000)
	assert.False(t, q.Dark)
	assert.InDelta(t, 0.5*1.85, q.Price, tolerance)
}

func TestComputeZeroElapsed(t *testing.T) {
	q := Default().Compute(0, 20, 100)
	assert.Equal(t, 0.0, q.Liters)
	assert.Equal(t, 0.0, q.Price)
	assert.True(t, q.Dark)
}

func TestComputeNegativeElapsedClampsToZero(t *testing.T) {
	q := Default().Compute(-3, 20, 30000)
	assert.Equal(t, 0.0, q.Liters)
	assert.Equal(t, 0.0, q.Price)
}

func TestComputeNaNElapsedClampsToZero(t *testing.T) {
	q := Default().Compute(math.NaN(), 20, 30000)
	assert.Equal(t, 0.0, q.Liters)
}

func TestTemperatureFallback(t *testing.T) {
	p := Default()

	assert.Equal(t, 31.5, p.Temperature(31.5, nil))
	assert.Equal(t, 25.0, p.Temperature(0, errors.New("checksum mismatch")))
	assert.Equal(t, 25.0, p.Temperature(math.NaN(), nil))
}

func TestSensorFaultMatchesDefaultReading(t *testing.T) {
	p := Default()

	faulted := p.Compute(42, p.Temperature(0, errors.New("timeout")), 18000)
	direct := p.Compute(42, 25, 18000)

	assert.Equal(t, direct, faulted)
}

func TestFallbackBelowThresholdIsNotDerated(t *testing.T) {
	p := Default()
	p.TempThreshold = 24 // the default temperature now counts as hot

	q := p.Compute(10, p.Temperature(0, errors.New("timeout")), 30000)
	assert.InDelta(t, 0.45, q.Liters, tolerance)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero flow", func(p *Policy) { p.FlowRate = 0 }},
		{"negative price", func(p *Policy) { p.PricePerLiter = -1 }},
		{"discount surcharge", func(p *Policy) { p.SurchargeRate = 0.5 }},
		{"derate above one", func(p *Policy) { p.TempDerate = 1.2 }},
		{"zero derate", func(p *Policy) { p.TempDerate = 0 }},
		{"negative light threshold", func(p *Policy) { p.LightThreshold = -1 }},
		{"NaN flow", func(p *Policy) { p.FlowRate = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPolicy))
		})
	}
}
