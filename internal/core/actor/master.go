package actor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"

	adactor "github.com/LaStrada/airthings2mqtt/internal/adapter/actor"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
	"github.com/LaStrada/airthings2mqtt/internal/config"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	. "github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type CloudActorProvider func() *adactor.CloudActor

// BLEPorts groups the bluetooth-side dependencies. Nil when bluetooth
// is disabled.
type BLEPorts struct {
	Fetcher port.DeviceDataFetcher
	Source  port.AdvertisementSource
	Watcher port.AdvertisementWatcher
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream

	cloudActor       *actor.PID
	mqttActor        *actor.PID
	pollerActor      *actor.PID
	pairingActor     *actor.PID
	blePollers       map[string]*actor.PID
	pendingRemovals  map[string]*actor.PID
	watcherCancel    context.CancelFunc
	store            port.EntryStore
	blePorts         *BLEPorts
	cloudActorProvider CloudActorProvider
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

// RemoveEntryRequest unpairs a device: its poller stops, its entry is
// dropped from the store and its retained topics get cleared.
type RemoveEntryRequest struct {
	domain.ActorRequestMixIn
	Address string
}

type RemoveEntryResponse struct {
	domain.ActorResponseMixIn
	Removed bool
}

type healthCheckResult struct {
	healthy        map[string]bool
	expected       int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, cloudActorProvider CloudActorProvider, mqttActorProvider MQTTActorProvider,
	store port.EntryStore, blePorts *BLEPorts, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:             config,
		behavior:           actor.NewBehavior(),
		stash:              &Stash{},
		logger:             ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:        &eventstream.EventStream{},
		blePollers:         map[string]*actor.PID{},
		pendingRemovals:    map[string]*actor.PID{},
		store:              store,
		blePorts:           blePorts,
		cloudActorProvider: cloudActorProvider,
		mqttActorProvider:  mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start cloud source
		if state.config.Cloud.Enable {
			cloudActorPID, err := state.startCloudActor(ctx)
			if err != nil {
				panic(err)
			}
			state.cloudActor = cloudActorPID

			pollerActorPID, err := state.startPollerActor(ctx)
			if err != nil {
				panic(err)
			}
			state.pollerActor = pollerActorPID
		}

		// start bluetooth source
		if state.config.BLE.Enable && state.blePorts != nil {
			pairingActorPID, err := state.startPairingActor(ctx)
			if err != nil {
				panic(err)
			}
			state.pairingActor = pairingActorPID

			for _, entry := range state.store.List() {
				state.startBLEPollerActor(ctx, entry)
			}

			state.startAdvertisementWatcher(ctx)
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()

		for id, pid := range state.supervisedActors() {
			childId := id
			state.currentHealthCheck.expected++
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      childId,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case StartScanRequest:
		state.logger.Debug("master@default StartScanRequest")
		state.forwardPairing(ctx, msg)
	case ConfirmPairingRequest:
		state.logger.Debug("master@default ConfirmPairingRequest")
		state.forwardPairing(ctx, msg)
	case domain.EntryCreated:
		// pairing persisted the entry, polling starts right away
		state.logger.Info("master@default EntryCreated", zap.String("address", msg.Entry.Address))
		state.startBLEPollerActor(ctx, msg.Entry)
	case RemoveEntryRequest:
		state.logger.Info("master@default RemoveEntryRequest", zap.String("address", msg.Address))
		state.removeEntry(ctx, msg)
	case DecommissionDeviceResponse:
		state.finishRemoveEntry(ctx, msg)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MQTT) {
			state.logger.Error("master@default mqtt error")
			panic(errors.New("mqtt terminated"))
		}
	case *actor.Stopping:
		if state.watcherCancel != nil {
			state.watcherCancel()
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// supervisedActors is the set of children covered by the healthcheck.
// BLE pollers are excluded: one unreachable device must not flip the
// whole bridge unhealthy.
func (state *MasterOfPuppetsActor) supervisedActors() map[string]*actor.PID {
	actors := map[string]*actor.PID{
		domain.ACTOR_ID_MQTT: state.mqttActor,
	}
	if state.cloudActor != nil {
		actors[domain.ACTOR_ID_CLOUD] = state.cloudActor
	}
	if state.pollerActor != nil {
		actors[domain.ACTOR_ID_POLLER] = state.pollerActor
	}
	if state.pairingActor != nil {
		actors[domain.ACTOR_ID_PAIRING] = state.pairingActor
	}
	return actors
}

func (state *MasterOfPuppetsActor) removeEntry(ctx actor.Context, msg RemoveEntryRequest) {
	address := strings.ToLower(msg.Address)
	sender := ForRequest(msg).ReplyTo(ctx)

	pid, running := state.blePollers[address]
	if !running {
		removed := state.store.Has(address)
		var err error
		if removed {
			err = state.store.Remove(address)
		}
		ctx.Send(sender, RemoveEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Removed:            removed && err == nil,
		})
		return
	}

	// retract the announced entities first, then stop the poller
	state.pendingRemovals[address] = sender
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, DecommissionDevice{}, 10*time.Second), func(err error) any {
		state.logger.Error("master: decommission failed", zap.String("address", address), zap.Error(err))
		return DecommissionDeviceResponse{Address: address}
	})
}

func (state *MasterOfPuppetsActor) finishRemoveEntry(ctx actor.Context, msg DecommissionDeviceResponse) {
	address := strings.ToLower(msg.Address)
	if pid, ok := state.blePollers[address]; ok {
		ctx.Stop(pid)
		delete(state.blePollers, address)
	}
	err := state.store.Remove(address)
	if sender, ok := state.pendingRemovals[address]; ok {
		delete(state.pendingRemovals, address)
		ctx.Send(sender, RemoveEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Removed:            err == nil,
		})
	}
}

func (state *MasterOfPuppetsActor) forwardPairing(ctx actor.Context, msg any) {
	if state.pairingActor == nil {
		if ctx.Sender() != nil {
			ctx.Respond(PairingStepResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: errors.New("bluetooth is disabled"),
				},
			})
		}
		return
	}
	ctx.Forward(state.pairingActor)
}

func (state *MasterOfPuppetsActor) startCloudActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	cloudProps := actor.PropsFromProducer(func() actor.Actor {
		return state.cloudActorProvider()
	}, actor.WithSupervisor(supervisor))
	cloudActorPID, err := ctx.SpawnNamed(cloudProps, domain.ACTOR_ID_CLOUD)
	if err != nil {
		return nil, err
	}

	return cloudActorPID, nil
}

func (state *MasterOfPuppetsActor) startPollerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&state.config, state.cloudActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pollerActorPID, err := ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_POLLER)
	if err != nil {
		return nil, err
	}

	return pollerActorPID, nil
}

func (state *MasterOfPuppetsActor) startPairingActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	pairingProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPairingActor(state.blePorts.Fetcher, state.blePorts.Source, state.store, state.logger)
	}, actor.WithSupervisor(supervisor))
	pairingPID, err := ctx.SpawnNamed(pairingProps, domain.ACTOR_ID_PAIRING)
	if err != nil {
		return nil, err
	}

	return pairingPID, nil
}

// startBLEPollerActor keys pollers by lowercase address, matching the
// entry store's address normalization.
func (state *MasterOfPuppetsActor) startBLEPollerActor(ctx actor.Context, entry domain.ConfigEntry) {
	address := strings.ToLower(entry.Address)
	if _, running := state.blePollers[address]; running {
		return
	}

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewBLEPollerActor(&state.config, entry, state.blePorts.Fetcher, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pid := ctx.Spawn(props)
	state.blePollers[address] = pid
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

// startAdvertisementWatcher feeds the pairing actor with every
// advertisement the adapter sees. The watcher owns its goroutine since
// ble scanning blocks until the context ends.
func (state *MasterOfPuppetsActor) startAdvertisementWatcher(ctx actor.Context) {
	if state.blePorts.Watcher == nil {
		return
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	state.watcherCancel = cancel

	pairingPID := state.pairingActor
	root := ctx.ActorSystem().Root
	watcher := state.blePorts.Watcher
	logger := state.logger

	go func() {
		err := watcher.Watch(watchCtx, func(info airthingsble.Advertisement) {
			root.Send(pairingPID, AdvertisementReceived{Info: info})
		})
		if err != nil {
			logger.Error("master: advertisement watcher stopped", zap.Error(err))
		}
	}()
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.expected = 0
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if state.checksReceived < state.expected {
		return false
	}
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
