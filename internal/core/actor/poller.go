package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/config"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/events"
	. "github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
)

// PollerActor drives the cloud polling loop. The first fetch resolves
// the device set; later fetches only refresh values and availability.
type PollerActor struct {
	behavior actor.Behavior
	stash    *Stash

	config      *config.Config
	cloudActor  *actor.PID
	eventStream *eventstream.EventStream
	quartz      quartz.Scheduler

	devices  map[string]domain.DeviceSnapshot
	resolved bool
	healthy  bool

	logger *zap.Logger
}

type cloudPollTick struct {
}

func NewPollerActor(config *config.Config, cloudActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		cloudActor:  cloudActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")

		if state.config.Cloud.PollIntervalSeconds > 0 {
			if err := state.startScheduler(ctx); err != nil {
				panic(err)
			}
		}

		state.requestDevices(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.behavior.BecomeStacked(state.WaitingCloudReceive)
	case *actor.Restarting:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: state.healthy,
			State:   "idle",
		})
	case cloudPollTick:
		state.logger.Debug("poller@default tick")
		state.requestDevices(ctx)
		state.behavior.BecomeStacked(state.WaitingCloudReceive)
	case *actor.Restarting:
		state.stopScheduler()
	case *actor.Stopping:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingCloudReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesResponse:
		if msg.HasResponseError() {
			// a failed poll flips every known device to unavailable,
			// the error itself is kept visible through the healthcheck
			state.logger.Error("poller@waiting GetDevicesResponse error", zap.Error(msg.GetResponseError()))
			state.healthy = false
			for _, snap := range state.devices {
				state.eventStream.Publish(events.AvailabilityEvent(snap, false))
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("poller@waiting GetDevicesResponse", zap.Int("devices", len(msg.Devices)))
		state.healthy = true

		if !state.resolved {
			state.resolved = true
			state.eventStream.Publish(domain.DevicesDiscoveredEvent{
				Source:  domain.SOURCE_CLOUD,
				Devices: snapshotList(msg.Devices),
			})
		}

		previous := state.devices
		state.devices = msg.Devices

		for _, snap := range msg.Devices {
			for _, ev := range events.SnapshotToUpdateEvents(snap) {
				state.eventStream.Publish(ev)
			}
			state.eventStream.Publish(events.AvailabilityEvent(snap, true))
		}
		// devices that vanished from the account go unavailable
		for serial, snap := range previous {
			if _, ok := msg.Devices[serial]; !ok {
				state.eventStream.Publish(events.AvailabilityEvent(snap, false))
			}
		}

		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stopScheduler()
	case *actor.Stopping:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) requestDevices(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.GetDevicesRequest{}, 60*time.Second), func(err error) any {
		return domain.GetDevicesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *PollerActor) startScheduler(ctx actor.Context) error {
	self := ctx.Self()
	system := ctx.ActorSystem()

	state.quartz = quartz.NewStdScheduler()
	state.quartz.Start(context.Background())

	tickJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		system.Root.Send(self, cloudPollTick{})
		return true, nil
	})
	interval := time.Duration(state.config.Cloud.PollIntervalSeconds) * time.Second
	return state.quartz.ScheduleJob(
		quartz.NewJobDetail(tickJob, quartz.NewJobKey("cloud_poll")),
		quartz.NewSimpleTrigger(interval))
}

func (state *PollerActor) stopScheduler() {
	if state.quartz != nil {
		state.quartz.Stop()
		state.quartz = nil
	}
}

func snapshotList(devices map[string]domain.DeviceSnapshot) []domain.DeviceSnapshot {
	list := make([]domain.DeviceSnapshot, 0, len(devices))
	for _, snap := range devices {
		list = append(list, snap)
	}
	return list
}
