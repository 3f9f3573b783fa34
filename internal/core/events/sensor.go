package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("airthings_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "LaStrada",
		Model:        "airthings2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Airthings bridge %s", md5HashShort(baseTopic)),
	}
}

// AirthingsDevice maps a device snapshot onto the registry device
// owning its entities.
func AirthingsDevice(snap domain.DeviceSnapshot, viaDevice string) domain.Device {
	return domain.Device{
		Id:           AirthingsDeviceId(snap.SerialNumber),
		Name:         snap.Name,
		Manufacturer: "Airthings",
		Model:        snap.Model,
		ViaDevice:    viaDevice,
		ConfigURL:    fmt.Sprintf("https://dashboard.airthings.com/devices/%s", snap.SerialNumber),
	}
}

// DeviceSensors computes the entity set of one device: one sensor per
// reading whose type appears in the static description table. Unknown
// types yield no entity.
func DeviceSensors(device domain.Device, snap domain.DeviceSnapshot) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	for _, reading := range snap.Sensors {
		desc, ok := domain.SensorDescriptions[reading.Type]
		if !ok {
			continue
		}
		sensors = append(sensors, domain.GenericSensor{
			Device:            device,
			Id:                domain.EntityID(snap.SerialNumber, desc.Key),
			SensorType:        domain.SENSOR_TYPE_SENSOR,
			Name:              desc.Name,
			UniqueId:          uniqueId(device.Id, desc.Key),
			UnitOfMeasurement: desc.Unit,
			StateClass:        domain.STATE_CLASS_MEASUREMENT,
			DeviceClass:       desc.DeviceClass,
			EntityCategory:    desc.EntityCategory,
			EnabledByDefault:  desc.EnabledByDefault,
			Icon:              desc.Icon,
		})
	}

	return sensors
}

// SnapshotToUpdateEvents builds one update event per known reading of
// the snapshot. Readings without a description are skipped, matching
// the entity set.
func SnapshotToUpdateEvents(snap domain.DeviceSnapshot) []any {
	var events []any
	for _, reading := range snap.Sensors {
		desc, ok := domain.SensorDescriptions[reading.Type]
		if !ok {
			continue
		}
		events = append(events, domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
				Id: domain.EntityID(snap.SerialNumber, desc.Key),
			},
			Value:    reading.Value,
			Decimals: desc.Decimals,
		})
	}
	return events
}

func AvailabilityEvent(snap domain.DeviceSnapshot, available bool) domain.DeviceAvailabilityEvent {
	return domain.DeviceAvailabilityEvent{
		DeviceId:  AirthingsDeviceId(snap.SerialNumber),
		Available: available,
	}
}

// AirthingsDeviceId is the registry id shared by the device record, its
// availability topic and its entities.
func AirthingsDeviceId(serialNumber string) string {
	return fmt.Sprintf("airthings_%s", serialNumber)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}
