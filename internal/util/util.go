package util

import (
	"github.com/LaStrada/airthings2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Cloud: config.CloudConfig{
			Enable:              true,
			ClientId:            "test_client",
			ClientSecret:        "test_secret",
			PollIntervalSeconds: 360,
		},
		BLE: config.BLEConfig{
			Enable:              true,
			ScanDurationMillis:  5000,
			ScanIntervalSeconds: 300,
			Retries:             3,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "airthings2mqtt",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Port: 8080,
	}
}
