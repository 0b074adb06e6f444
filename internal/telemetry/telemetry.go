package telemetry

import (
	"time"
)

// RawReading is a single decoded, unit-converted telemetry packet from a sonde.
type RawReading struct {
	Serial        uint32    `json:"serial_number"`  // Sonde serial number
	Counter       uint32    `json:"packet_counter"` // Monotonic packet counter assigned by the sonde
	DeviceTime    time.Time `json:"device_time"`    // Time reported by the sonde
	Latitude      float64   `json:"lat"`            // GPS latitude in degrees
	Longitude     float64   `json:"lon"`            // GPS longitude in degrees
	Altitude      float64   `json:"alt_m"`          // GPS altitude in meters
	VerticalSpeed float64   `json:"vspeed_ms"`      // Vertical speed in m/s, ascent-positive
	EastSpeed     float64   `json:"espeed_ms"`      // Eastward speed in m/s
	NorthSpeed    float64   `json:"nspeed_ms"`      // Northward speed in m/s
	Satellites    int       `json:"satellites"`     // Number of GPS satellites in view
	Temperature   float64   `json:"temp_c"`         // Air temperature in °C
	Humidity      float64   `json:"rh_percent"`     // Relative humidity in %, clamped to [0, 100]
	Battery       float64   `json:"battery_v"`      // Battery voltage in V
	RSSI          int       `json:"rssi_dbm"`       // Received signal strength in dBm
}

// ProcessedReading is a RawReading enriched with derived meteorological
// quantities. It is immutable once emitted by the pipeline.
type ProcessedReading struct {
	RawReading

	Pressure    float64   `json:"pressure_hpa"` // Integrated pressure in hPa
	Dewpoint    float64   `json:"dewpoint_c"`   // Dewpoint temperature in °C
	MixingRatio float64   `json:"mixing_ratio"` // Water vapor mixing ratio in g/kg
	Theta       float64   `json:"theta"`        // Potential temperature in K
	ThetaE      float64   `json:"theta_e"`      // Equivalent potential temperature in K
	IngestedAt  time.Time `json:"timestamp"`    // When the packet was processed
}
