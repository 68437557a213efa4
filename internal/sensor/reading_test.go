package sensor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReading(t *testing.T) {
	ts := time.Date(2025, 1, 15, 8, 30, 0, 123_000_000, time.UTC)

	r := NewReading(ts, 22.5, "s1", "A")

	assert.Equal(t, "temperature", r.Measurement)
	assert.Equal(t, "C", r.Unit)
	assert.Equal(t, "s1", r.Sensor)
	assert.Equal(t, "A", r.Site)
	assert.Equal(t, ts.UnixMilli(), r.Timestamp)
	assert.True(t, r.Time().Equal(ts))
}

func TestNewReadingNormalizesToUTC(t *testing.T) {
	helsinki := time.FixedZone("EET", 2*60*60)
	local := time.Date(2025, 6, 1, 12, 0, 0, 0, helsinki)

	r := NewReading(local, 20, "s1", "A")
	assert.Equal(t, local.UTC().UnixMilli(), r.Timestamp)
}

func TestPayloadWireFormat(t *testing.T) {
	r := Reading{
		Measurement: MeasurementTemperature,
		Value:       21.75,
		Sensor:      "s1",
		Unit:        UnitCelsius,
		Site:        "A",
		Timestamp:   1736929800123,
	}

	data, err := r.Payload()
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"measurement":"temperature","value":21.75,"sensor":"s1","unit":"C","site":"A","ts":1736929800123}`,
		string(data))
	// Field order is part of the wire contract
	assert.Equal(t,
		`{"measurement":"temperature","value":21.75,"sensor":"s1","unit":"C","site":"A","ts":1736929800123}`,
		string(data))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 6)
}
