package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSensorDescriptions(t *testing.T) {
	assert.NoError(t, ValidateSensorDescriptions())
}

func TestValidateSensorDescriptionsRejectsMismatchedKey(t *testing.T) {

	desc := SensorDescriptions["temp"]
	desc.Key = "temperature"
	SensorDescriptions["temp"] = desc
	defer func() {
		desc.Key = "temp"
		SensorDescriptions["temp"] = desc
	}()

	assert.Error(t, ValidateSensorDescriptions())
}

func TestSnapshotValue(t *testing.T) {

	assert := assert.New(t)

	snap := DeviceSnapshot{
		SerialNumber: "2930012345",
		Sensors: []SensorReading{
			{Type: "temp", Value: 21.5},
			{Type: "humidity", Value: 38},
		},
	}

	v, ok := snap.Value("temp")
	assert.True(ok)
	assert.Equal(21.5, v)

	_, ok = snap.Value("co2")
	assert.False(ok)
}
