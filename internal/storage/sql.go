package storage

import (
	_ "embed"
)

const (
	insertFlightSQL = `
INSERT INTO flights (
                     serial,
                     started_at,
                     ground_pressure)
VALUES (?, ?, ?)`

	selectFlightsSQL = `
SELECT f.id,
       f.serial,
       f.started_at,
       f.ground_pressure,
       COUNT(r.id)
FROM flights f
         LEFT JOIN readings r ON r.flight_id = f.id
GROUP BY f.id
ORDER BY f.started_at`

	insertReadingSQL = `
INSERT INTO readings (flight_id,
                      ingested_at,
                      device_time,
                      packet_counter,
                      latitude,
                      longitude,
                      altitude,
                      vertical_speed,
                      east_speed,
                      north_speed,
                      satellites,
                      temperature,
                      humidity,
                      battery,
                      rssi,
                      pressure,
                      dewpoint,
                      mixing_ratio,
                      theta,
                      theta_e)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectReadingsSQL = `
SELECT ingested_at,
       device_time,
       packet_counter,
       latitude,
       longitude,
       altitude,
       vertical_speed,
       east_speed,
       north_speed,
       satellites,
       temperature,
       humidity,
       battery,
       rssi,
       pressure,
       dewpoint,
       mixing_ratio,
       theta,
       theta_e
FROM readings
WHERE flight_id = ?
ORDER BY id`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_readings_flight ON readings (flight_id);
CREATE INDEX IF NOT EXISTS idx_flights_serial ON flights (serial);`
)

//go:embed schema.sql
var initSchemaSQL string
