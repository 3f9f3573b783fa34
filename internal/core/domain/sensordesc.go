package domain

import "fmt"

const (
	STATE_CLASS_MEASUREMENT = "measurement"

	DEVICE_CLASS_TEMPERATURE     = "temperature"
	DEVICE_CLASS_HUMIDITY        = "humidity"
	DEVICE_CLASS_PRESSURE        = "pressure"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_CO2             = "carbon_dioxide"
	DEVICE_CLASS_VOC             = "volatile_organic_compounds_parts"
	DEVICE_CLASS_SIGNAL_STRENGTH = "signal_strength"
	DEVICE_CLASS_PM1             = "pm1"
	DEVICE_CLASS_PM25            = "pm25"

	ENTITY_CATEGORY_DIAGNOSTIC = "diagnostic"

	UNIT_BECQUEREL      = "Bq/m³"
	UNIT_CELSIUS        = "°C"
	UNIT_PERCENT        = "%"
	UNIT_MBAR           = "mbar"
	UNIT_PPM            = "ppm"
	UNIT_PPB            = "ppb"
	UNIT_DECIBEL_MW     = "dBm"
	UNIT_MICROGRAMS_M3  = "µg/m³"
	SENSOR_TYPE_SENSOR  = "sensor"
)

// SensorDescription is the fixed display metadata for one sensor type.
// The table below is the single source of entity descriptions; reading
// bundles may carry additional types, which never become entities.
type SensorDescription struct {
	Key              string
	Name             string
	Unit             string
	DeviceClass      string
	EntityCategory   string
	EnabledByDefault *bool
	Icon             string
	Decimals         uint
}

var SensorDescriptions = map[string]SensorDescription{
	"radonShortTermAvg": {
		Key:  "radonShortTermAvg",
		Name: "Radon",
		Unit: UNIT_BECQUEREL,
		Icon: "mdi:radioactive",
	},
	"temp": {
		Key:         "temp",
		Name:        "Temperature",
		Unit:        UNIT_CELSIUS,
		DeviceClass: DEVICE_CLASS_TEMPERATURE,
		Decimals:    1,
	},
	"humidity": {
		Key:         "humidity",
		Name:        "Humidity",
		Unit:        UNIT_PERCENT,
		DeviceClass: DEVICE_CLASS_HUMIDITY,
		Decimals:    1,
	},
	"pressure": {
		Key:         "pressure",
		Name:        "Pressure",
		Unit:        UNIT_MBAR,
		DeviceClass: DEVICE_CLASS_PRESSURE,
		Decimals:    1,
	},
	"battery": {
		Key:            "battery",
		Name:           "Battery",
		Unit:           UNIT_PERCENT,
		DeviceClass:    DEVICE_CLASS_BATTERY,
		EntityCategory: ENTITY_CATEGORY_DIAGNOSTIC,
	},
	"co2": {
		Key:         "co2",
		Name:        "CO2",
		Unit:        UNIT_PPM,
		DeviceClass: DEVICE_CLASS_CO2,
	},
	"voc": {
		Key:         "voc",
		Name:        "VOC",
		Unit:        UNIT_PPB,
		DeviceClass: DEVICE_CLASS_VOC,
	},
	"light": {
		Key:  "light",
		Name: "Light",
		Unit: UNIT_PERCENT,
		Icon: "mdi:brightness-5",
	},
	"virusRisk": {
		Key:  "virusRisk",
		Name: "Virus risk",
		Icon: "mdi:virus",
	},
	"mold": {
		Key:  "mold",
		Name: "Mold",
		Icon: "mdi:mushroom",
	},
	"rssi": {
		Key:              "rssi",
		Name:             "Signal strength",
		Unit:             UNIT_DECIBEL_MW,
		DeviceClass:      DEVICE_CLASS_SIGNAL_STRENGTH,
		EntityCategory:   ENTITY_CATEGORY_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
	},
	"pm1": {
		Key:         "pm1",
		Name:        "PM1",
		Unit:        UNIT_MICROGRAMS_M3,
		DeviceClass: DEVICE_CLASS_PM1,
	},
	"pm25": {
		Key:         "pm25",
		Name:        "PM2.5",
		Unit:        UNIT_MICROGRAMS_M3,
		DeviceClass: DEVICE_CLASS_PM25,
	},
}

// ValidateSensorDescriptions checks the static table for internal
// consistency. Run at boot so a bad edit fails fast instead of
// producing broken discovery payloads.
func ValidateSensorDescriptions() error {
	for key, desc := range SensorDescriptions {
		if desc.Key != key {
			return fmt.Errorf("sensor description %q has mismatched key %q", key, desc.Key)
		}
		if desc.Name == "" {
			return fmt.Errorf("sensor description %q has no name", key)
		}
		if desc.EntityCategory != "" && desc.EntityCategory != ENTITY_CATEGORY_DIAGNOSTIC {
			return fmt.Errorf("sensor description %q has unknown entity category %q", key, desc.EntityCategory)
		}
	}
	return nil
}

func optionalBool(value bool) *bool {
	return &value
}
