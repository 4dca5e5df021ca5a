package models

import "time"

// Alert codes reported by the device alongside readings.
const (
	AlertOK = "OK"
)

// DefaultSetpoint is the setpoint assumed before the device reports one.
const DefaultSetpoint = 24.0

// SensorReading is the latest climate reading. Temperature and Humidity are nil
// until the device has reported them.
type SensorReading struct {
	Temperature *float64  `json:"temp"`
	Humidity    *float64  `json:"hum"`
	Alert       string    `json:"alert"`
	Setpoint    float64   `json:"setpoint"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// DefaultSensorReading returns the reading held before any telemetry arrives.
func DefaultSensorReading() SensorReading {
	return SensorReading{Alert: AlertOK, Setpoint: DefaultSetpoint}
}

// HasTemperature reports whether a temperature value is present.
func (r SensorReading) HasTemperature() bool { return r.Temperature != nil }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
