package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Cloud    CloudConfig `mapstructure:"cloud"`
	BLE      BLEConfig   `mapstructure:"ble"`
	MQTT     MQTTConfig  `mapstructure:"mqtt"`

	StateDir string `mapstructure:"state_dir"`
	Port     uint   `mapstructure:"port"`
	HttpLog  bool   `mapstructure:"http_log"`
}

type CloudConfig struct {
	Enable              bool   `mapstructure:"enable"`
	ClientId            string `mapstructure:"client_id"`
	ClientSecret        string `mapstructure:"client_secret"`
	PollIntervalSeconds uint32 `mapstructure:"poll_interval_seconds"`
}

type BLEConfig struct {
	Enable              bool   `mapstructure:"enable"`
	ScanDurationMillis  uint32 `mapstructure:"scan_duration_millis"`
	ScanIntervalSeconds uint32 `mapstructure:"scan_interval_seconds"`
	Retries             uint   `mapstructure:"retries"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
