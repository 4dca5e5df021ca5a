package models

import (
	"fmt"
	"strconv"
	"time"
)

// Defaults used until the device or the store reports a configuration.
const (
	DefaultHysteresis = 2.0
	DefaultTempMax    = 30
	DefaultTempMin    = 18
)

// SystemConfig is the climate control configuration. The device is expected to
// keep TempMin < Setpoint < TempMax; the bridge does not enforce it.
type SystemConfig struct {
	ID         int64     `json:"id,omitempty"`
	Setpoint   float64   `json:"setpoint"`
	Hysteresis float64   `json:"hysteresis"`
	TempMax    int       `json:"tempMax"`
	TempMin    int       `json:"tempMin"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// DefaultSystemConfig returns the configuration held before any is known.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Setpoint:   DefaultSetpoint,
		Hysteresis: DefaultHysteresis,
		TempMax:    DefaultTempMax,
		TempMin:    DefaultTempMin,
	}
}

// Consistent reports whether TempMin < Setpoint < TempMax holds.
func (c SystemConfig) Consistent() bool {
	return float64(c.TempMin) < c.Setpoint && c.Setpoint < float64(c.TempMax)
}

// ConfigPatch is a partial configuration update. The same document is written
// to the store and published to the device.
type ConfigPatch struct {
	Setpoint   *float64  `json:"setpoint,omitempty"`
	Hysteresis *float64  `json:"hysteresis,omitempty"`
	TempMax    *int      `json:"temp_max,omitempty"`
	TempMin    *int      `json:"temp_min,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Empty reports whether the patch carries no field.
func (p ConfigPatch) Empty() bool {
	return p.Setpoint == nil && p.Hysteresis == nil && p.TempMax == nil && p.TempMin == nil
}

// Apply returns c with the patch fields overlaid.
func (p ConfigPatch) Apply(c SystemConfig) SystemConfig {
	if p.Setpoint != nil {
		c.Setpoint = *p.Setpoint
	}
	if p.Hysteresis != nil {
		c.Hysteresis = *p.Hysteresis
	}
	if p.TempMax != nil {
		c.TempMax = *p.TempMax
	}
	if p.TempMin != nil {
		c.TempMin = *p.TempMin
	}
	if !p.UpdatedAt.IsZero() {
		c.UpdatedAt = p.UpdatedAt
	}
	return c
}

// Validate checks every present field against its bounds.
func (p ConfigPatch) Validate() error {
	if p.Setpoint != nil && !SetpointRange.Contains(*p.Setpoint) {
		return &ValidationError{Field: FieldSetpoint, Value: *p.Setpoint, Bounds: SetpointRange}
	}
	if p.Hysteresis != nil && !HysteresisRange.Contains(*p.Hysteresis) {
		return &ValidationError{Field: FieldHysteresis, Value: *p.Hysteresis, Bounds: HysteresisRange}
	}
	if p.TempMax != nil && !TempMaxRange.Contains(float64(*p.TempMax)) {
		return &ValidationError{Field: FieldTempMax, Value: float64(*p.TempMax), Bounds: TempMaxRange}
	}
	if p.TempMin != nil && !TempMinRange.Contains(float64(*p.TempMin)) {
		return &ValidationError{Field: FieldTempMin, Value: float64(*p.TempMin), Bounds: TempMinRange}
	}
	return nil
}

// Configurable fields.
const (
	FieldSetpoint   = "setpoint"
	FieldHysteresis = "hysteresis"
	FieldTempMax    = "temp_max"
	FieldTempMin    = "temp_min"
)

// Bounds is an inclusive numeric range.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Accepted ranges for configuration changes.
var (
	SetpointRange   = Bounds{Min: 15, Max: 35}
	HysteresisRange = Bounds{Min: 0.5, Max: 5}
	TempMaxRange    = Bounds{Min: 20, Max: 50}
	TempMinRange    = Bounds{Min: 5, Max: 25}
)

// Contains reports whether v lies within the inclusive range.
func (b Bounds) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

func (b Bounds) String() string {
	return strconv.FormatFloat(b.Min, 'f', -1, 64) + "-" + strconv.FormatFloat(b.Max, 'f', -1, 64)
}

// ValidationError reports a value outside the accepted range of a field.
type ValidationError struct {
	Field  string
	Value  float64
	Bounds Bounds
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v out of range %s", e.Field, e.Value, e.Bounds)
}
