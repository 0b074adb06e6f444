package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Supported packet layouts, selected by expected field count.
const (
	// FieldCountStandard is the layout emitted by current receiver firmware:
	// sn, counter, unix time, lat, lon, alt, vSpeed, eSpeed, nSpeed, sats,
	// temp, rh, battery, rssi.
	FieldCountStandard = 14

	// FieldCountLegacy is the layout of first-generation trackers, which
	// report hour/minute/second instead of unix time, scale battery
	// differently and carry no RSSI field.
	FieldCountLegacy = 15
)

// MalformedPacketError reports a packet that could not be decoded. The record
// is dropped and no session state is touched; callers log it and move on.
type MalformedPacketError struct {
	Field  string
	Reason string
}

func (e *MalformedPacketError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed packet: %s", e.Reason)
	}
	return fmt.Sprintf("malformed packet: field %q: %s", e.Field, e.Reason)
}

// Decoder turns raw telemetry records into validated RawReadings.
type Decoder struct {
	fieldCount int
	now        func() time.Time
}

// WithClock overrides the wall clock, used to date legacy h/m/s timestamps.
func WithClock(now func() time.Time) func(*Decoder) {
	return func(d *Decoder) {
		d.now = now
	}
}

// NewDecoder creates a Decoder for the given packet layout. Only the
// standard (14) and legacy (15) field counts are supported.
func NewDecoder(fieldCount int, options ...func(*Decoder)) (*Decoder, error) {
	if fieldCount != FieldCountStandard && fieldCount != FieldCountLegacy {
		return nil, fmt.Errorf("unsupported packet field count %d", fieldCount)
	}

	d := Decoder{
		fieldCount: fieldCount,
		now:        time.Now,
	}

	for _, option := range options {
		option(&d)
	}

	return &d, nil
}

// FieldCount returns the expected number of fields per packet.
func (d *Decoder) FieldCount() int {
	return d.fieldCount
}

// DecodeLine decodes one comma-delimited telemetry line.
func (d *Decoder) DecodeLine(line string) (*RawReading, error) {
	return d.DecodeFields(strings.Split(line, ","))
}

// DecodeFields decodes one delimited record. It fails with
// MalformedPacketError when the field count mismatches or any field does not
// parse as its expected numeric type.
func (d *Decoder) DecodeFields(fields []string) (*RawReading, error) {
	if len(fields) != d.fieldCount {
		return nil, &MalformedPacketError{
			Reason: fmt.Sprintf("expected %d fields, got %d", d.fieldCount, len(fields)),
		}
	}

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if d.fieldCount == FieldCountLegacy {
		return d.decodeLegacy(fields)
	}
	return d.decodeStandard(fields)
}

func (d *Decoder) decodeStandard(fields []string) (*RawReading, error) {
	serial, err := parseUint(fields[0], "sn")
	if err != nil {
		return nil, err
	}
	counter, err := parseUint(fields[1], "counter")
	if err != nil {
		return nil, err
	}
	unixTime, err := parseInt(fields[2], "time")
	if err != nil {
		return nil, err
	}

	r := RawReading{
		Serial:     serial,
		Counter:    counter,
		DeviceTime: time.Unix(unixTime, 0).UTC(),
	}
	if err = d.decodeCommon(fields[3:], &r); err != nil {
		return nil, err
	}

	battery, err := parseFloat(fields[12], "battery")
	if err != nil {
		return nil, err
	}
	rssi, err := parseFloat(fields[13], "rssi")
	if err != nil {
		return nil, err
	}

	r.Battery = battery / 255.0 * 3.3
	r.RSSI = int(rssi)
	return &r, nil
}

func (d *Decoder) decodeLegacy(fields []string) (*RawReading, error) {
	serial, err := parseUint(fields[0], "sn")
	if err != nil {
		return nil, err
	}
	counter, err := parseUint(fields[1], "counter")
	if err != nil {
		return nil, err
	}

	var hms [3]int64
	for i, name := range []string{"hour", "minute", "second"} {
		if hms[i], err = parseInt(fields[2+i], name); err != nil {
			return nil, err
		}
	}

	now := d.now().UTC()
	r := RawReading{
		Serial:  serial,
		Counter: counter,
		DeviceTime: time.Date(now.Year(), now.Month(), now.Day(),
			int(hms[0]), int(hms[1]), int(hms[2]), 0, time.UTC),
	}
	if err = d.decodeCommon(fields[5:], &r); err != nil {
		return nil, err
	}

	battery, err := parseFloat(fields[14], "battery")
	if err != nil {
		return nil, err
	}

	r.Battery = battery / 100.0
	return &r, nil
}

// decodeCommon decodes the nine fields shared by both layouts, starting at
// latitude: lat, lon, alt, vSpeed, eSpeed, nSpeed, sats, temp, rh.
func (d *Decoder) decodeCommon(fields []string, r *RawReading) error {
	names := []string{"lat", "lon", "alt", "vSpeed", "eSpeed", "nSpeed", "temp", "rh"}
	values := make([]float64, len(names))

	raw := []string{fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[7], fields[8]}
	for i, s := range raw {
		v, err := parseFloat(s, names[i])
		if err != nil {
			return err
		}
		values[i] = v
	}

	sats, err := parseInt(fields[6], "sats")
	if err != nil {
		return err
	}

	r.Latitude = values[0] * 1e-7
	r.Longitude = values[1] * 1e-7
	r.Altitude = values[2] / 1000.0 // mm to m

	// Sondes report vertical speed descent-positive; normalize to
	// ascent-positive.
	r.VerticalSpeed = -values[3] / 100.0 // cm/s to m/s
	r.EastSpeed = values[4] / 100.0
	r.NorthSpeed = values[5] / 100.0

	r.Satellites = int(sats)
	r.Temperature = values[6] / 320.0
	r.Humidity = clampHumidity(values[7] / 2.0)
	return nil
}

// uploadKeys are the fields required in a keyed upload record, in wire order.
var uploadKeys = []string{
	"sn", "counter", "time", "lat", "lon", "alt",
	"vSpeed", "eSpeed", "nSpeed", "sats", "temp", "rh", "battery", "rssi",
}

// DecodeUpload decodes a keyed record as received from a relaying receiver.
// All fields of the standard layout must be present and numeric.
func (d *Decoder) DecodeUpload(record map[string]any) (*RawReading, error) {
	fields := make([]string, 0, len(uploadKeys))
	for _, key := range uploadKeys {
		v, ok := record[key]
		if !ok {
			return nil, &MalformedPacketError{Field: key, Reason: "missing"}
		}
		fields = append(fields, formatUploadValue(v))
	}

	dec := d
	if d.fieldCount != FieldCountStandard {
		// Uploads always use the standard layout, whatever the serial
		// side of this deployment speaks.
		tmp := *d
		tmp.fieldCount = FieldCountStandard
		dec = &tmp
	}
	return dec.DecodeFields(fields)
}

// formatUploadValue renders a decoded JSON value back to its wire form.
// Plain fmt.Sprint would render large float64 values in scientific notation,
// which the integer field parsers reject.
func formatUploadValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	case fmt.Stringer:
		return n.String()
	default:
		return fmt.Sprint(v)
	}
}

func clampHumidity(rh float64) float64 {
	return math.Min(math.Max(rh, 0), 100)
}

func parseFloat(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &MalformedPacketError{Field: name, Reason: "not a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MalformedPacketError{Field: name, Reason: "not finite"}
	}
	return v, nil
}

func parseInt(s, name string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Receivers occasionally emit integer fields with a decimal
		// part; accept and truncate.
		f, fErr := parseFloat(s, name)
		if fErr != nil {
			return 0, &MalformedPacketError{Field: name, Reason: "not an integer"}
		}
		return int64(f), nil
	}
	return v, nil
}

func parseUint(s, name string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, &MalformedPacketError{Field: name, Reason: "not an unsigned integer"}
	}
	return uint32(v), nil
}
