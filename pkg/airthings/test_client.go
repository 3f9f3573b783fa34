package airthings

import "context"

// TestClient returns a fixed device set, for tests that need a working
// cloud source without network access.
type TestClient struct {
}

func NewTestClient() TestClient {
	return TestClient{}
}

func (c TestClient) UpdateDevices(ctx context.Context) (map[string]Device, error) {
	return map[string]Device{
		"2930012345": {
			SerialNumber: "2930012345",
			Name:         "Living room",
			Type:         "WAVE_PLUS",
			Sensors: []SensorReading{
				{Type: "radonShortTermAvg", Value: 42},
				{Type: "temp", Value: 21.5},
				{Type: "humidity", Value: 38},
				{Type: "pressure", Value: 1001.3},
				{Type: "battery", Value: 88},
				{Type: "co2", Value: 640},
				{Type: "voc", Value: 120},
			},
		},
		"2960054321": {
			SerialNumber: "2960054321",
			Name:         "Bedroom",
			Type:         "VIEW_PLUS",
			Sensors: []SensorReading{
				{Type: "temp", Value: 19.2},
				{Type: "humidity", Value: 44},
				{Type: "co2", Value: 710},
				{Type: "pm25", Value: 4},
				{Type: "glowInTheDark", Value: 1},
			},
		},
	}, nil
}

// FailingTestClient always reports a domain error.
type FailingTestClient struct {
	Code int
}

func NewFailingTestClient(code int) FailingTestClient {
	return FailingTestClient{Code: code}
}

func (c FailingTestClient) UpdateDevices(ctx context.Context) (map[string]Device, error) {
	return nil, &Error{Op: "/devices", StatusCode: c.Code}
}
