package met

import (
	"fmt"
	"math"
)

// DomainError reports integration input that is numerically invalid. Letting
// such input through would turn the whole remaining trajectory into NaN, so
// the integrator rejects the sample and keeps its previous state.
type DomainError struct {
	Reason   string
	Pressure float64 // previous pressure at the time of rejection, hPa
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("pressure integration: %s (previous pressure %.3f hPa)", e.Reason, e.Pressure)
}

// Integrator reconstructs the pressure trajectory of a single sonde by
// sequential hypsometric integration with virtual-temperature correction.
// Updates are order-dependent and non-idempotent: the caller must feed
// accepted samples exactly once, in arrival order. Not safe for concurrent
// use; the owning session serializes access.
type Integrator struct {
	groundPressure float64

	lastAltitude float64
	lastPressure float64
	primed       bool
}

// NewIntegrator creates an Integrator seeded with the configured ground
// pressure in hPa.
func NewIntegrator(groundPressure float64) *Integrator {
	return &Integrator{groundPressure: groundPressure}
}

// Update advances the trajectory by one sample and returns the pressure in
// hPa at the given altitude. The first update always returns the ground
// pressure, regardless of the reported altitude. On a DomainError the state
// is left untouched.
func (i *Integrator) Update(altitude, tempC, rh float64) (float64, error) {
	if !i.primed {
		i.lastAltitude = altitude
		i.lastPressure = i.groundPressure
		i.primed = true
		return i.groundPressure, nil
	}

	if i.lastPressure <= 0 {
		return 0, &DomainError{Reason: "non-positive previous pressure", Pressure: i.lastPressure}
	}

	e := VaporPressure(tempC, rh)
	if e >= i.lastPressure {
		return 0, &DomainError{Reason: "vapor pressure exceeds previous pressure", Pressure: i.lastPressure}
	}

	virtualTempK := (tempC + zeroCelsiusK) / (1 - (e/i.lastPressure)*(1-epsilon))
	pressure := i.lastPressure * math.Exp(-gravity*(altitude-i.lastAltitude)/(dryAirGasConstant*virtualTempK))

	if math.IsNaN(pressure) || math.IsInf(pressure, 0) || pressure <= 0 {
		return 0, &DomainError{Reason: "non-finite integration result", Pressure: i.lastPressure}
	}

	i.lastAltitude = altitude
	i.lastPressure = pressure
	return pressure, nil
}

// Primed reports whether the integrator has consumed its first sample.
func (i *Integrator) Primed() bool {
	return i.primed
}
