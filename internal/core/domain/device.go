package domain

import "fmt"

// DeviceSnapshot is a read-only view of one device and its latest
// readings, in the order the upstream source reports them.
type DeviceSnapshot struct {
	SerialNumber string
	Name         string
	Model        string
	Sensors      []SensorReading
}

type SensorReading struct {
	Type  string
	Value float64
}

// Value scans the reading list for the given sensor type. The second
// return is false when the type is absent, which callers surface as an
// unavailable entity rather than an error.
func (s DeviceSnapshot) Value(sensorType string) (float64, bool) {
	for _, reading := range s.Sensors {
		if reading.Type == sensorType {
			return reading.Value, true
		}
	}
	return 0, false
}

// EntityID identifies one (device, sensor type) pair across MQTT topics
// and discovery payloads.
func EntityID(serialNumber, sensorType string) string {
	return fmt.Sprintf("%s_%s", serialNumber, sensorType)
}
