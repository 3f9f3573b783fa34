package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	"github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthings"
)

const cloudRequestTimeout = 30 * time.Second

type CloudActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   port.CloudClient
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewCloudActor(client port.CloudClient, logger *zap.Logger) *CloudActor {
	act := &CloudActor{
		client:   client,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_CLOUD, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *CloudActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CloudActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("cloud@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CLOUD,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesRequest:
		state.logger.Debug("cloud@default: GetDevicesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDevices),
			mapTaskResult[domain.GetDevicesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDevicesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(cloudRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingCloud)
	default:
		state.logger.Debug("cloud@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CloudActor) WaitingCloud(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("cloud@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("cloud@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *CloudActor) getDevices() (*domain.GetDevicesResponse, error) {
	devices, err := a.client.UpdateDevices(context.Background())
	if err != nil {
		a.logger.Error("cloud: update devices failed", zap.Error(err))
		return nil, err
	}
	snapshots := make(map[string]domain.DeviceSnapshot, len(devices))
	for serial, device := range devices {
		snapshots[serial] = deviceToSnapshot(device)
	}
	return &domain.GetDevicesResponse{
		Devices: snapshots,
	}, nil
}

func deviceToSnapshot(device airthings.Device) domain.DeviceSnapshot {
	snap := domain.DeviceSnapshot{
		SerialNumber: device.SerialNumber,
		Name:         device.Name,
		Model:        device.Type,
	}
	for _, reading := range device.Sensors {
		snap.Sensors = append(snap.Sensors, domain.SensorReading{
			Type:  reading.Type,
			Value: reading.Value,
		})
	}
	return snap
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
