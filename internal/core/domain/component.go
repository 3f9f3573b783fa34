package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
	ConfigURL    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement
	DeviceClass       string // temperature, humidity, pressure, ...
	EntityCategory    string // diagnostic or empty
	EnabledByDefault  *bool
	Icon              string
}

// ConfigEntry is the persisted record for one paired BLE device. Cloud
// credentials live in the process configuration instead.
type ConfigEntry struct {
	Title   string `json:"title"`
	Address string `json:"address"`
}
