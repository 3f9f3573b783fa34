package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
)

func testSnapshot() domain.DeviceSnapshot {
	return domain.DeviceSnapshot{
		SerialNumber: "2930012345",
		Name:         "Living room",
		Model:        "WAVE_PLUS",
		Sensors: []domain.SensorReading{
			{Type: "temp", Value: 21.5},
			{Type: "humidity", Value: 38},
			{Type: "battery", Value: 88},
			{Type: "glowInTheDark", Value: 1},
		},
	}
}

func TestDeviceSensorsSkipsUnknownTypes(t *testing.T) {

	assert := assert.New(t)

	snap := testSnapshot()
	device := AirthingsDevice(snap, "")
	sensors := DeviceSensors(device, snap)

	assert.Len(sensors, 3)
	for _, s := range sensors {
		assert.NotEqual("2930012345_glowInTheDark", s.Id)
	}

	assert.Equal("2930012345_temp", sensors[0].Id)
	assert.Equal(domain.DEVICE_CLASS_TEMPERATURE, sensors[0].DeviceClass)
	assert.Equal(domain.UNIT_CELSIUS, sensors[0].UnitOfMeasurement)
	assert.Equal(domain.STATE_CLASS_MEASUREMENT, sensors[0].StateClass)

	// battery is a diagnostic entity
	assert.Equal(domain.ENTITY_CATEGORY_DIAGNOSTIC, sensors[2].EntityCategory)
}

func TestSnapshotToUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	events := SnapshotToUpdateEvents(testSnapshot())
	assert.Len(events, 3)

	first, ok := events[0].(domain.FloatSensorUpdateEvent)
	assert.True(ok)
	assert.Equal("2930012345_temp", first.Id)
	assert.Equal(21.5, first.Value)
	assert.Equal(uint(1), first.Decimals)
}

func TestAirthingsDevice(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("airthings2mqtt")
	device := AirthingsDevice(testSnapshot(), bridge.Id)

	assert.Equal("airthings_2930012345", device.Id)
	assert.Equal("Airthings", device.Manufacturer)
	assert.Equal(bridge.Id, device.ViaDevice)
	assert.Contains(device.ConfigURL, "2930012345")
}
