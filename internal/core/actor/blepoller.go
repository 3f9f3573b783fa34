package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/config"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/events"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	. "github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

// BLEPollerActor polls one paired device over bluetooth. One instance
// runs per config entry.
type BLEPollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config      *config.Config
	entry       domain.ConfigEntry
	fetcher     port.DeviceDataFetcher
	eventStream *eventstream.EventStream

	resolved bool
	last     domain.DeviceSnapshot

	logger *zap.Logger
}

type blePollTick struct {
}

// battery-powered devices stop responding well before 0%
const lowBatteryPercent = 10

// DecommissionDevice asks a poller to retract what it announced before
// it is stopped, as part of removing its config entry.
type DecommissionDevice struct {
	domain.ActorRequestMixIn
}

type DecommissionDeviceResponse struct {
	domain.ActorResponseMixIn
	Address string
}

type bleFetchResult struct {
	device *airthingsble.Device
	err    error
}

func NewBLEPollerActor(config *config.Config, entry domain.ConfigEntry, fetcher port.DeviceDataFetcher,
	eventStream *eventstream.EventStream, logger *zap.Logger) *BLEPollerActor {
	act := &BLEPollerActor{
		config:      config,
		entry:       entry,
		fetcher:     fetcher,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(fmt.Sprintf("blepoller/%s", entry.Address), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *BLEPollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *BLEPollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("blepoller@starting started", zap.String("title", state.entry.Title))

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.behavior.Become(state.DefaultReceive)
		ctx.Send(ctx.Self(), blePollTick{})
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("blepoller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BLEPollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      fmt.Sprintf("blepoller/%s", state.entry.Address),
			Healthy: true,
			State:   "idle",
		})
	case DecommissionDevice:
		state.logger.Info("blepoller@default decommission", zap.String("address", state.entry.Address))
		if state.resolved {
			bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
			device := events.AirthingsDevice(state.last, bridgeDevice.Id)
			state.eventStream.Publish(domain.DeviceRemovedEvent{
				SerialNumber: state.last.SerialNumber,
				Sensors:      events.DeviceSensors(device, state.last),
			})
		}
		ForRequest(msg).Respond(ctx, DecommissionDeviceResponse{Address: state.entry.Address})
	case blePollTick:
		state.logger.Debug("blepoller@default tick")

		address := state.entry.Address
		fetcher := state.fetcher
		NewBackgroundTask(ctx, func() (*bleFetchResult, error) {
			device, err := fetcher.FetchDevice(context.Background(), address)
			return &bleFetchResult{device: device, err: err}, nil
		}).Recover(func(err error) bleFetchResult {
			return bleFetchResult{err: err}
		}).WithTimeout(2 * time.Minute).PipeTo(ctx.Self())

		// schedule next tick
		state.scheduler.RequestOnce(time.Duration(state.config.BLE.ScanIntervalSeconds)*time.Second, ctx.Self(), blePollTick{})
		state.behavior.BecomeStacked(state.WaitingFetchReceive)
	default:
		state.logger.Debug("blepoller@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BLEPollerActor) WaitingFetchReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case bleFetchResult:
		if msg.err != nil {
			state.logger.Error("blepoller@waiting fetch error", zap.Error(msg.err))
			if state.resolved {
				state.eventStream.Publish(events.AvailabilityEvent(state.last, false))
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		snap := bleDeviceToSnapshot(msg.device)
		state.last = snap

		if battery, ok := snap.Value("battery"); ok && battery <= lowBatteryPercent {
			state.logger.Warn("blepoller@waiting low battery",
				zap.String("serial", snap.SerialNumber),
				zap.Float64("percent", battery))
		}

		if !state.resolved {
			state.resolved = true
			state.eventStream.Publish(domain.DevicesDiscoveredEvent{
				Source:  domain.SOURCE_BLE,
				Devices: []domain.DeviceSnapshot{snap},
			})
		}

		for _, ev := range events.SnapshotToUpdateEvents(snap) {
			state.eventStream.Publish(ev)
		}
		state.eventStream.Publish(events.AvailabilityEvent(snap, true))

		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("blepoller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func bleDeviceToSnapshot(device *airthingsble.Device) domain.DeviceSnapshot {
	snap := domain.DeviceSnapshot{
		SerialNumber: device.SerialNumber,
		Name:         device.FriendlyName(),
		Model:        device.Model,
	}
	for _, reading := range device.Sensors {
		snap.Sensors = append(snap.Sensors, domain.SensorReading{
			Type:  reading.Type,
			Value: reading.Value,
		})
	}
	return snap
}
