package mqtt

import (
	"fmt"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	Availability      []HAAvailability  `json:"availability,omitempty"`
	AvailabilityMode  string            `json:"availability_mode,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HAAvailability struct {
	Topic string `json:"topic"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
	ConfigURL    string   `json:"configuration_url,omitempty"`
}

func HADiscoverySensorTopic(discoveryTopic string, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

// GenericSensorToHADiscoveryMessage builds the discovery payload for
// one entity. Bridge-owned entities announce on the bridge state topic
// alone; device entities are available only while both the bridge and
// their device are online.
func GenericSensorToHADiscoveryMessage(client *MQTTClient, bridgeDeviceId string, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        client.SensorStateTopic(sensor.Id),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Device.Id == bridgeDeviceId {
		disConfig.AvTopic = client.BridgeStateTopic()
	} else {
		disConfig.Availability = []HAAvailability{
			{Topic: client.BridgeStateTopic()},
			{Topic: client.DeviceAvailabilityTopic(sensor.Device.Id)},
		}
		disConfig.AvailabilityMode = "all"
	}
	return disConfig
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
		ConfigURL:    d.ConfigURL,
	}
}
