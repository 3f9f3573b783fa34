package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_CLOUD        = "cloud"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_PAIRING      = "pairing"

	SOURCE_CLOUD = "cloud"
	SOURCE_BLE   = "ble"
)

// Cloud source

type GetDevicesRequest struct {
	ActorRequestMixIn
}

type GetDevicesResponse struct {
	ActorResponseMixIn
	Devices map[string]DeviceSnapshot
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishAvailabilityRequest struct {
	ActorRequestMixIn
	Event DeviceAvailabilityEvent
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Lifecycle

type EntryCreated struct {
	Entry ConfigEntry
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
