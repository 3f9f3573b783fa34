package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/util"
	"github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
)

type discoveryCollectorActor struct {
	requests chan domain.PublishDiscoveryRequest
}

func (a *discoveryCollectorActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryRequest:
		a.requests <- msg
		ctx.Respond(domain.PublishDiscoveryResponse{})
	}
}

func TestHADiscoveryActorAnnouncesEachDeviceOnce(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	collector := &discoveryCollectorActor{requests: make(chan domain.PublishDiscoveryRequest, 4)}
	mqttPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return collector
	}))

	es := &eventstream.EventStream{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, mqttPID, es, logger)
	}))

	time.Sleep(500 * time.Millisecond)

	cloudSnap := domain.DeviceSnapshot{
		SerialNumber: "2930012345",
		Name:         "Living room",
		Model:        "WAVE_PLUS",
		Sensors: []domain.SensorReading{
			{Type: "temp", Value: 21.5},
			{Type: "radonShortTermAvg", Value: 42},
		},
	}
	es.Publish(domain.DevicesDiscoveredEvent{
		Source:  domain.SOURCE_CLOUD,
		Devices: []domain.DeviceSnapshot{cloudSnap},
	})

	select {
	case req := <-collector.requests:
		assert.NotEmpty(req.Sensors)
		for _, sensor := range req.Sensors {
			assert.Equal("airthings_2930012345", sensor.Device.Id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no discovery publish for cloud device")
	}

	// the same device resolved again must not be re-announced, a new
	// one must be
	bleSnap := domain.DeviceSnapshot{
		SerialNumber: "2930099887",
		Name:         "Wave Plus",
		Model:        "2930",
		Sensors: []domain.SensorReading{
			{Type: "temp", Value: 20.1},
		},
	}
	es.Publish(domain.DevicesDiscoveredEvent{
		Source:  domain.SOURCE_BLE,
		Devices: []domain.DeviceSnapshot{cloudSnap, bleSnap},
	})

	select {
	case req := <-collector.requests:
		for _, sensor := range req.Sensors {
			assert.Equal("airthings_2930099887", sensor.Device.Id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no discovery publish for ble device")
	}

	es.Publish(domain.DevicesDiscoveredEvent{
		Source:  domain.SOURCE_CLOUD,
		Devices: []domain.DeviceSnapshot{cloudSnap},
	})
	select {
	case <-collector.requests:
		t.Fatal("device announced twice")
	case <-time.After(1 * time.Second):
	}

	context.Stop(pid)
	context.Stop(mqttPID)
	as.Shutdown()
}
