package actor

import (
	"context"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/adapter/entrystore"
	"github.com/LaStrada/airthings2mqtt/internal/core/flow"
	"github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

func spawnTestPairing(context *actor.RootContext, store *entrystore.MemoryStore, logger *zap.Logger) *actor.PID {
	return context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPairingActor(masterTestFetcher{}, masterTestSource{}, store, logger)
	}))
}

func TestPairingActorManualFlow(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := entrystore.NewMemoryStore()
	pid := spawnTestPairing(context, store, logger)

	res, err := context.RequestFuture(pid, StartScanRequest{}, 5*time.Second).Result()
	assert.NoError(err)
	scanResp, ok := res.(PairingStepResponse)
	assert.True(ok)
	assert.Equal(flow.StateUserSelect, scanResp.Result.State)
	assert.Equal("Wave Plus (099887)", scanResp.Result.Choices[testMasterAddress])

	res, err = context.RequestFuture(pid, ConfirmPairingRequest{Address: testMasterAddress}, 5*time.Second).Result()
	assert.NoError(err)
	confirmResp, ok := res.(PairingStepResponse)
	assert.True(ok)
	assert.Equal(flow.StateCreated, confirmResp.Result.State)
	assert.True(store.Has(testMasterAddress))

	context.Stop(pid)
	as.Shutdown()
}

func TestPairingActorConfirmWithoutScan(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := entrystore.NewMemoryStore()
	pid := spawnTestPairing(context, store, logger)

	res, err := context.RequestFuture(pid, ConfirmPairingRequest{Address: testMasterAddress}, 5*time.Second).Result()
	assert.NoError(err)
	resp, ok := res.(PairingStepResponse)
	assert.True(ok)
	assert.Equal(flow.StateAborted, resp.Result.State)
	assert.Equal(flow.AbortUnknown, resp.Result.Reason)
	assert.False(store.Has(testMasterAddress))

	context.Stop(pid)
	as.Shutdown()
}

func TestPairingActorAutomaticFlow(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := entrystore.NewMemoryStore()
	pid := spawnTestPairing(context, store, logger)

	context.Send(pid, AdvertisementReceived{Info: airthingsble.Advertisement{
		Address: testMasterAddress,
		Name:    "Airthings Wave+",
		ManufacturerData: map[uint16][]byte{
			airthingsble.ManufacturerID: {0x01, 0x02},
		},
		ServiceUUIDs: []string{airthingsble.ServiceUUIDs[0]},
	}})

	time.Sleep(1 * time.Second)

	assert.True(store.Has(testMasterAddress))

	// a second advertisement for a paired device is ignored
	context.Send(pid, AdvertisementReceived{Info: airthingsble.Advertisement{
		Address: testMasterAddress,
	}})
	time.Sleep(500 * time.Millisecond)
	assert.Len(store.List(), 1)

	context.Stop(pid)
	as.Shutdown()
}

type upgradeRequiredFetcher struct {
}

func (f upgradeRequiredFetcher) FetchDevice(ctx context.Context, address string) (*airthingsble.Device, error) {
	device, _ := masterTestFetcher{}.FetchDevice(ctx, address)
	device.Firmware = airthingsble.Firmware{Current: "1.2.0", Needed: "1.3.5", NeedUpgrade: true}
	return device, nil
}

func TestPairingActorAutomaticFlowFirmwareGate(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := entrystore.NewMemoryStore()
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPairingActor(upgradeRequiredFetcher{}, masterTestSource{}, store, logger)
	}))

	context.Send(pid, AdvertisementReceived{Info: airthingsble.Advertisement{
		Address: testMasterAddress,
		Name:    "Airthings Wave+",
		ManufacturerData: map[uint16][]byte{
			airthingsble.ManufacturerID: {0x01, 0x02},
		},
		ServiceUUIDs: []string{airthingsble.ServiceUUIDs[0]},
	}})
	time.Sleep(1 * time.Second)

	// no entry without the firmware upgrade
	assert.False(store.Has(testMasterAddress))
	assert.Empty(store.List())

	context.Stop(pid)
	as.Shutdown()
}
