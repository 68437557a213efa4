package sensor

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// MeasurementTemperature is the only measurement this agent emits
	MeasurementTemperature = "temperature"

	// UnitCelsius is the unit of every emitted value
	UnitCelsius = "C"
)

// Reading is a single synthetic measurement. Field order and JSON names are
// the wire format consumers depend on.
type Reading struct {
	Measurement string  `json:"measurement"`
	Value       float64 `json:"value"`
	Sensor      string  `json:"sensor"`
	Unit        string  `json:"unit"`
	Site        string  `json:"site"`
	Timestamp   int64   `json:"ts"` // Unix epoch milliseconds, UTC
}

// NewReading builds a temperature reading stamped with ts
func NewReading(ts time.Time, value float64, sensor, site string) Reading {
	return Reading{
		Measurement: MeasurementTemperature,
		Value:       value,
		Sensor:      sensor,
		Unit:        UnitCelsius,
		Site:        site,
		Timestamp:   ts.UTC().UnixMilli(),
	}
}

// Time returns the reading timestamp as a UTC time
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// Payload serializes the reading for publishing
func (r Reading) Payload() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading: %w", err)
	}
	return data, nil
}
