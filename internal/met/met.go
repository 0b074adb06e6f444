// Package met implements the meteorological derivations of the ground
// station: pure thermodynamic quantities computed from temperature, pressure
// and humidity, and the sequential hypsometric pressure integrator.
package met

import (
	"math"
)

const (
	gravity           = 9.80665 // m/s²
	dryAirGasConstant = 287.05  // J/(kg·K)
	zeroCelsiusK      = 273.15

	// epsilon is the ratio of the molar masses of water vapor and dry air.
	epsilon = 0.622

	// minHumidity keeps the logarithmic and vapor-pressure terms away from
	// their singularities at 0% RH.
	minHumidity = 0.1
)

// SaturationVaporPressure returns the saturation water vapor pressure in hPa
// for the given temperature in °C (Bolton 1980 fit).
func SaturationVaporPressure(tempC float64) float64 {
	return 6.112 * math.Exp(17.67*tempC/(tempC+243.5))
}

// VaporPressure returns the actual water vapor pressure in hPa given the
// temperature in °C and relative humidity in %.
func VaporPressure(tempC, rh float64) float64 {
	return SaturationVaporPressure(tempC) * math.Max(rh, minHumidity) / 100.0
}

// Dewpoint returns the dewpoint temperature in °C via the Magnus formula
// inversion, given temperature in °C and relative humidity in %.
func Dewpoint(tempC, rh float64) float64 {
	const b, c = 17.62, 243.12

	gamma := math.Log(math.Max(rh, minHumidity)/100.0) + b*tempC/(c+tempC)
	return c * gamma / (b - gamma)
}

// MixingRatio returns the water vapor mixing ratio in g/kg given temperature
// in °C, pressure in hPa and relative humidity in %.
func MixingRatio(tempC, pressure, rh float64) float64 {
	e := SaturationVaporPressure(tempC) * rh / 100.0
	return 622.0 * e / (pressure - e)
}

// Theta returns the potential temperature in K for a parcel brought
// adiabatically to 1000 hPa.
func Theta(tempC, pressure float64) float64 {
	return (tempC + zeroCelsiusK) * math.Pow(1000.0/pressure, 0.286)
}

// ThetaE returns the equivalent potential temperature in K using the Bolton
// approximation, accounting for latent heat release of the parcel's moisture.
func ThetaE(tempC, pressure, rh float64) float64 {
	tempK := tempC + zeroCelsiusK
	w := MixingRatio(tempC, pressure, rh) / 1000.0 // g/kg to kg/kg
	theta := tempK * math.Pow(1000.0/pressure, 0.2854)
	return theta * math.Exp(2.5e6*w/(1004.0*tempK))
}
