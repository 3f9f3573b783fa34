package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	adactor "github.com/LaStrada/airthings2mqtt/internal/adapter/actor"
	"github.com/LaStrada/airthings2mqtt/internal/adapter/ble"
	"github.com/LaStrada/airthings2mqtt/internal/adapter/entrystore"
	"github.com/LaStrada/airthings2mqtt/internal/config"
	"github.com/LaStrada/airthings2mqtt/internal/core/actor"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	"github.com/LaStrada/airthings2mqtt/internal/server"
	"github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthings"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	if err := domain.ValidateSensorDescriptions(); err != nil {
		slog.Error("sensor description errors", "error", err)
		return
	}

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	store, err := buildEntryStore(cfg)
	if err != nil {
		panic(err)
	}

	blePorts, err := buildBLEPorts(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, cloudActorProvider(cfg, logger), mqttActorProvider(cfg, logger), store, blePorts, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => AIRTHINGS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("AIRTHINGS_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("airthings")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if !cfg.Cloud.Enable && !cfg.BLE.Enable {
		return nil, errors.New("at least one of cloud.enable and ble.enable must be set")
	}
	if cfg.Cloud.Enable && (cfg.Cloud.ClientId == "" || cfg.Cloud.ClientSecret == "") {
		return nil, errors.New("config params cloud.client_id and cloud.client_secret are required when cloud.enable is set")
	}
	if cfg.Cloud.Enable && cfg.Cloud.PollIntervalSeconds < 60 {
		return nil, errors.New("config param cloud.poll_interval_seconds should be >= 60")
	}
	if cfg.BLE.Enable && cfg.BLE.ScanDurationMillis < 1000 {
		return nil, errors.New("config param ble.scan_duration_millis should be >= 1000")
	}
	if cfg.BLE.Enable && cfg.BLE.ScanIntervalSeconds < 60 {
		return nil, errors.New("config param ble.scan_interval_seconds should be >= 60")
	}
	if cfg.BLE.Enable && cfg.BLE.Retries < 1 {
		return nil, errors.New("config param ble.retries should be >= 1")
	}

	return &cfg, nil
}

func buildEntryStore(cfg *config.Config) (port.EntryStore, error) {
	if cfg.StateDir != "" {
		return entrystore.NewFileStore(cfg.StateDir)
	}
	return entrystore.NewMemoryStore(), nil
}

func buildBLEPorts(cfg *config.Config, logger *zap.Logger) (*actor.BLEPorts, error) {
	if !cfg.BLE.Enable {
		return nil, nil
	}

	adapter, err := ble.NewAdapter(time.Duration(cfg.BLE.ScanDurationMillis)*time.Millisecond, int(cfg.BLE.Retries), logger)
	if err != nil {
		return nil, err
	}

	return &actor.BLEPorts{
		Fetcher: adapter,
		Source:  adapter,
		Watcher: adapter,
	}, nil
}

func cloudActorProvider(cfg *config.Config, logger *zap.Logger) actor.CloudActorProvider {
	return func() *adactor.CloudActor {
		return adactor.NewCloudActor(airthings.NewClient(cfg.Cloud.ClientId, cfg.Cloud.ClientSecret), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("cloud.enable", false)
	viper.SetDefault("cloud.poll_interval_seconds", 360)
	viper.SetDefault("ble.enable", false)
	viper.SetDefault("ble.scan_duration_millis", 5000)
	viper.SetDefault("ble.scan_interval_seconds", 300)
	viper.SetDefault("ble.retries", 3)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "airthings2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Cloud.ClientSecret = "*redacted*"
	slog.Info("Using", "config", cfg)
}
