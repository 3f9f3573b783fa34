package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// DeviceAvailabilityEvent flips every entity of one device between
// available and unavailable, typically after a failed or recovered poll.
type DeviceAvailabilityEvent struct {
	DeviceId  string
	Available bool
}

// DevicesDiscoveredEvent is published once per source when the first
// successful fetch resolves the device set. Entities are computed from
// the first event that names a device; later events for the same
// device are ignored.
type DevicesDiscoveredEvent struct {
	Source  string // "cloud" or "ble"
	Devices []DeviceSnapshot
}

// DeviceRemovedEvent is published when a paired device is removed. Its
// retained discovery and availability topics get cleared and the device
// becomes eligible for re-announcement.
type DeviceRemovedEvent struct {
	SerialNumber string
	Sensors      []GenericSensor
}
