package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/flow"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	. "github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

const pairingStepTimeout = 90 * time.Second

// PairingActor owns discovery flow sessions. Manual pairing goes
// scan/select through the HTTP API, automatic pairing is fed by the
// advertisement watcher. Created entries are persisted here and
// reported to the parent so it can start polling the device.
type PairingActor struct {
	behavior actor.Behavior
	stash    *Stash

	fetcher port.DeviceDataFetcher
	source  port.AdvertisementSource
	store   port.EntryStore
	session *flow.Flow

	logger *zap.Logger
}

type StartScanRequest struct {
	domain.ActorRequestMixIn
}

type ConfirmPairingRequest struct {
	domain.ActorRequestMixIn
	Address string
}

type PairingStepResponse struct {
	domain.ActorResponseMixIn
	Result flow.Result
}

type AdvertisementReceived struct {
	Info airthingsble.Advertisement
}

type flowStepResult struct {
	response PairingStepResponse
	replyTo  *actor.PID
}

func NewPairingActor(fetcher port.DeviceDataFetcher, source port.AdvertisementSource, store port.EntryStore, logger *zap.Logger) *PairingActor {
	act := &PairingActor{
		fetcher:  fetcher,
		source:   source,
		store:    store,
		behavior: actor.NewBehavior(),
		stash:    &Stash{},
		logger:   ActorLogger(domain.ACTOR_ID_PAIRING, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *PairingActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PairingActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("pairing@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PAIRING,
			Healthy: true,
			State:   string(state.sessionState()),
		})
	case StartScanRequest:
		state.logger.Debug("pairing@default: StartScanRequest")
		sender := ForRequest(msg).ReplyTo(ctx)

		// a scan always opens a fresh session
		session := state.newSession()
		state.session = session
		state.runStep(ctx, session, flow.ListDevices{}, sender)
	case ConfirmPairingRequest:
		state.logger.Debug("pairing@default: ConfirmPairingRequest", zap.String("address", msg.Address))
		sender := ForRequest(msg).ReplyTo(ctx)

		session := state.session
		if session == nil || session.State() != flow.StateUserSelect {
			ctx.Send(sender, PairingStepResponse{
				Result: flow.Result{State: flow.StateAborted, Reason: flow.AbortUnknown},
			})
			return
		}
		state.runStep(ctx, session, flow.SelectDevice{Address: msg.Address}, sender)
	case AdvertisementReceived:
		state.logger.Debug("pairing@default: AdvertisementReceived",
			zap.String("address", msg.Info.Address), zap.String("name", msg.Info.Name))
		if state.store.Has(msg.Info.Address) {
			return
		}
		state.runAutomatic(ctx, msg.Info)
	default:
		state.logger.Debug("pairing@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PairingActor) WaitingFlow(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case flowStepResult:
		state.logger.Debug("pairing@waiting flowStepResult", zap.String("state", string(msg.response.Result.State)))

		state.finishStep(ctx, msg.response.Result)

		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.response)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("pairing@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// runStep executes a blocking flow step off the actor goroutine. The
// actor stays in a waiting state meanwhile so a session is never
// stepped concurrently.
func (state *PairingActor) runStep(ctx actor.Context, session *flow.Flow, input flow.Input, sender *actor.PID) {
	NewBackgroundTask(ctx, func() (*flowStepResult, error) {
		result := session.Step(context.Background(), input)
		return &flowStepResult{
			response: PairingStepResponse{Result: result},
			replyTo:  sender,
		}, nil
	}).Recover(func(err error) flowStepResult {
		return flowStepResult{
			response: PairingStepResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
				Result: flow.Result{State: flow.StateAborted, Reason: flow.AbortUnknown},
			},
			replyTo: sender,
		}
	}).WithTimeout(pairingStepTimeout).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingFlow)
}

// runAutomatic drives the bluetooth discovery path end to end: the
// confirm step needs no user input when the bridge is headless.
func (state *PairingActor) runAutomatic(ctx actor.Context, info airthingsble.Advertisement) {
	session := state.newSession()
	NewBackgroundTask(ctx, func() (*flowStepResult, error) {
		result := session.Step(context.Background(), flow.BluetoothDiscovery{Info: info})
		if result.State == flow.StateBluetoothConfirm {
			result = session.Step(context.Background(), flow.ConfirmDiscovery{})
		}
		return &flowStepResult{
			response: PairingStepResponse{Result: result},
		}, nil
	}).Recover(func(err error) flowStepResult {
		return flowStepResult{
			response: PairingStepResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
				Result: flow.Result{State: flow.StateAborted, Reason: flow.AbortUnknown},
			},
		}
	}).WithTimeout(pairingStepTimeout).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingFlow)
}

// finishStep persists a created entry and reports it upward.
func (state *PairingActor) finishStep(ctx actor.Context, result flow.Result) {
	switch result.State {
	case flow.StateCreated:
		if result.Entry == nil {
			return
		}
		if err := state.store.Add(*result.Entry); err != nil {
			state.logger.Error("pairing: could not persist entry", zap.Error(err))
			return
		}
		state.logger.Info("pairing: entry created",
			zap.String("title", result.Entry.Title), zap.String("address", result.Entry.Address))
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), domain.EntryCreated{Entry: *result.Entry})
		}
		state.session = nil
	case flow.StateAborted:
		state.logger.Debug("pairing: flow aborted", zap.String("reason", string(result.Reason)))
	}
}

func (state *PairingActor) newSession() *flow.Flow {
	return flow.New(state.fetcher, state.source, state.store, state.logger)
}

func (state *PairingActor) sessionState() flow.State {
	if state.session == nil {
		return flow.StateIdle
	}
	return state.session.State()
}
