// Package pricing turns a dispense's elapsed time and ambient conditions into
// liters and a price. It has no I/O and no clock; everything is a parameter.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPolicy is returned by Validate for policies that would produce
// negative or nonsensical prices.
var ErrInvalidPolicy = errors.New("pricing: invalid policy")

// Policy holds the tariff and flow constants. Field tags match the config keys.
type Policy struct {
	FlowRate           float64 `mapstructure:"flow_rate" yaml:"flow_rate"`                     // liters per second
	PricePerLiter      float64 `mapstructure:"price_per_liter" yaml:"price_per_liter"`         // base price
	SurchargeRate      float64 `mapstructure:"surcharge_rate" yaml:"surcharge_rate"`           // multiplier when dark
	LightThreshold     int     `mapstructure:"light_threshold" yaml:"light_threshold"`         // below = dark
	TempThreshold      float64 `mapstructure:"temp_threshold" yaml:"temp_threshold"`           // above = derated
	TempDerate         float64 `mapstructure:"temp_derate" yaml:"temp_derate"`                 // flow multiplier when hot
	DefaultTemperature float64 `mapstructure:"default_temperature" yaml:"default_temperature"` // used on sensor fault
}

// Default returns the kiosk's factory tariff.
func Default() Policy {
	return Policy{
		FlowRate:           0.05,
		PricePerLiter:      1.85,
		SurchargeRate:      1.10,
		LightThreshold:     20000,
		TempThreshold:      28,
		TempDerate:         0.9,
		DefaultTemperature: 25,
	}
}

// Quote is the result of pricing one dispense.
type Quote struct {
	Liters float64
	Price  float64
	Dark   bool
}

// Validate reports whether the policy can be used for pricing.
func (p Policy) Validate() error {
	switch {
	case !(p.FlowRate > 0):
		return fmt.Errorf("%w: flow_rate must be > 0, got %v", ErrInvalidPolicy, p.FlowRate)
	case !(p.PricePerLiter >= 0):
		return fmt.Errorf("%w: price_per_liter must be >= 0, got %v", ErrInvalidPolicy, p.PricePerLiter)
	case !(p.SurchargeRate >= 1):
		return fmt.Errorf("%w: surcharge_rate must be >= 1, got %v", ErrInvalidPolicy, p.SurchargeRate)
	case !(p.TempDerate > 0 && p.TempDerate <= 1):
		return fmt.Errorf("%w: temp_derate must be in (0, 1], got %v", ErrInvalidPolicy, p.TempDerate)
	case p.LightThreshold < 0:
		return fmt.Errorf("%w: light_threshold must be >= 0, got %d", ErrInvalidPolicy, p.LightThreshold)
	}
	return nil
}

// Temperature returns t, or the default temperature if the read failed.
// It is shaped to accept a sensor read directly:
//
//	p.Temperature(ambient.ReadTemperature())
func (p Policy) Temperature(t float64, err error) float64 {
	if err != nil || math.IsNaN(t) {
		return p.DefaultTemperature
	}
	return t
}

// FlowRateAt returns the effective flow rate at the given temperature.
func (p Policy) FlowRateAt(temperature float64) float64 {
	if temperature > p.TempThreshold {
		return p.FlowRate * p.TempDerate
	}
	return p.FlowRate
}

// IsDark reports whether a light reading qualifies for the night surcharge.
func (p Policy) IsDark(light int) bool {
	return light < p.LightThreshold
}

// Compute prices a dispense of elapsedSeconds. Negative elapsed time (clock
// stepped backwards mid-dispense) is treated as zero.
func (p Policy) Compute(elapsedSeconds, temperature float64, light int) Quote {
	if !(elapsedSeconds > 0) {
		elapsedSeconds = 0
	}

	liters := elapsedSeconds * p.FlowRateAt(temperature)
	dark := p.IsDark(light)

	perLiter := p.PricePerLiter
	if dark {
		perLiter *= p.SurchargeRate
	}

	return Quote{
		Liters: liters,
		Price:  liters * perLiter,
		Dark:   dark,
	}
}
