package actor

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/config"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/events"
	. "github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
)

// HADiscoveryActor announces entities to Home Assistant. Each device
// is announced once, on the first discovered set that contains it, so
// devices paired at runtime show up without a restart.
type HADiscoveryActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *Stash

	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	announced      map[string]bool

	logger *zap.Logger
}

type onDiscoveredEvent struct {
	event domain.DevicesDiscoveredEvent
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		announced:   map[string]bool{},
		logger:      ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@default started")
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			switch ev := value.(type) {
			case domain.DevicesDiscoveredEvent:
				ctx.Send(ctx.Self(), onDiscoveredEvent{event: ev})
			case domain.DeviceRemovedEvent:
				ctx.Send(ctx.Self(), ev)
			}
		})
	case *actor.Stopping:
		state.unsubscribe()
	case *actor.Restarting:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "idle",
		})
	case onDiscoveredEvent:
		// each device is announced once, on the first device set that
		// resolves it
		var fresh []domain.DeviceSnapshot
		for _, snap := range msg.event.Devices {
			if state.announced[snap.SerialNumber] {
				continue
			}
			state.announced[snap.SerialNumber] = true
			fresh = append(fresh, snap)
		}
		if len(fresh) == 0 {
			state.logger.Debug("hadiscovery@default: no new devices", zap.String("source", msg.event.Source))
			return
		}
		state.logger.Info("hadiscovery@default: announcing entities",
			zap.String("source", msg.event.Source), zap.Int("devices", len(fresh)))

		sensors := state.buildSensors(fresh)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: sensors,
		}, 10*time.Second), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	case domain.DeviceRemovedEvent:
		// removed devices become announceable again
		state.logger.Debug("hadiscovery@default: device removed", zap.String("serial", msg.SerialNumber))
		delete(state.announced, msg.SerialNumber)
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@default: discovery publish failed", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("hadiscovery@default: discovery published")
		}
	default:
		state.logger.Debug("hadiscovery@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) buildSensors(devices []domain.DeviceSnapshot) []domain.GenericSensor {
	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)

	var sensors []domain.GenericSensor
	for _, snap := range devices {
		device := events.AirthingsDevice(snap, bridgeDevice.Id)
		sensors = append(sensors, events.DeviceSensors(device, snap)...)
	}
	return sensors
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
