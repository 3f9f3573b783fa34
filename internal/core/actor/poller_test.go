package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	adactor "github.com/LaStrada/airthings2mqtt/internal/adapter/actor"
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/util"
	"github.com/LaStrada/airthings2mqtt/internal/util/actorutil"
	"github.com/LaStrada/airthings2mqtt/pkg/airthings"
)

type eventRecorder struct {
	mutex  sync.Mutex
	events []any
}

func (r *eventRecorder) record(value any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, value)
}

func (r *eventRecorder) snapshot() []any {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]any{}, r.events...)
}

func TestPollerActorPublishesCloudDevices(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := &eventstream.EventStream{}
	recorder := &eventRecorder{}
	sub := es.Subscribe(recorder.record)
	defer es.Unsubscribe(sub)

	cloudPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewCloudActor(airthings.NewTestClient(), logger)
	}))
	pollerPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, cloudPID, es, logger)
	}))

	time.Sleep(2 * time.Second)

	var discovered *domain.DevicesDiscoveredEvent
	floatUpdates := 0
	online := map[string]bool{}
	for _, ev := range recorder.snapshot() {
		switch event := ev.(type) {
		case domain.DevicesDiscoveredEvent:
			discovered = &event
		case domain.FloatSensorUpdateEvent:
			floatUpdates++
		case domain.DeviceAvailabilityEvent:
			online[event.DeviceId] = event.Available
		}
	}

	assert.NotNil(discovered)
	assert.Equal(domain.SOURCE_CLOUD, discovered.Source)
	assert.Len(discovered.Devices, 2)
	assert.Greater(floatUpdates, 0)
	assert.True(online["airthings_2930012345"])
	assert.True(online["airthings_2960054321"])

	res, err := context.RequestFuture(pollerPID, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(health.Healthy)

	context.Stop(pollerPID)
	context.Stop(cloudPID)
	as.Shutdown()
}

func TestPollerActorUnhealthyOnCloudError(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := &eventstream.EventStream{}

	cloudPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewCloudActor(airthings.NewFailingTestClient(502), logger)
	}))
	pollerPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, cloudPID, es, logger)
	}))

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pollerPID, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.False(health.Healthy)

	context.Stop(pollerPID)
	context.Stop(cloudPID)
	as.Shutdown()
}
