package flow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

const (
	wavePlusAddress = "A4:DA:32:00:11:22"
	ternAddress     = "A4:DA:32:00:33:44"
)

type fakeFetcher struct {
	devices map[string]*airthingsble.Device
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchDevice(ctx context.Context, address string) (*airthingsble.Device, error) {
	f.calls = append(f.calls, address)
	if err, ok := f.errs[address]; ok {
		return nil, err
	}
	if device, ok := f.devices[address]; ok {
		return device, nil
	}
	return nil, port.ErrDeviceNotFound
}

type fakeSource struct {
	advertisements []airthingsble.Advertisement
}

func (s *fakeSource) DiscoveredAdvertisements(ctx context.Context) ([]airthingsble.Advertisement, error) {
	return s.advertisements, nil
}

type fakeStore struct {
	entries map[string]domain.ConfigEntry
}

func newFakeStore(addresses ...string) *fakeStore {
	s := &fakeStore{entries: map[string]domain.ConfigEntry{}}
	for _, a := range addresses {
		s.entries[a] = domain.ConfigEntry{Address: a}
	}
	return s
}

func (s *fakeStore) Add(entry domain.ConfigEntry) error {
	s.entries[entry.Address] = entry
	return nil
}

func (s *fakeStore) Remove(address string) error {
	delete(s.entries, address)
	return nil
}

func (s *fakeStore) Has(address string) bool {
	_, ok := s.entries[address]
	return ok
}

func (s *fakeStore) List() []domain.ConfigEntry {
	var entries []domain.ConfigEntry
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	return entries
}

func wavePlusAdvertisement() airthingsble.Advertisement {
	return airthingsble.Advertisement{
		Address:          wavePlusAddress,
		Name:             "Airthings Wave+",
		ManufacturerData: map[uint16][]byte{airthingsble.ManufacturerID: {0xB9, 0x70, 0xA4, 0xAE}},
		ServiceUUIDs:     []string{"b42e1c08-ade7-11e4-89d3-123b93f75cba"},
	}
}

func wavePlusDevice() *airthingsble.Device {
	return &airthingsble.Device{
		Address:      wavePlusAddress,
		Name:         "Wave Plus",
		Model:        "2930",
		SerialNumber: "2930012345",
		Firmware:     airthingsble.Firmware{Current: "1.3.5", Needed: "1.3.5"},
		Sensors: []airthingsble.SensorReading{
			{Type: "temp", Value: 21.5},
		},
	}
}

func newTestFlow(fetcher *fakeFetcher, source *fakeSource, store *fakeStore) *Flow {
	return New(fetcher, source, store, zap.NewNop())
}

func TestBluetoothDiscoveryAbortsWhenAlreadyConfiguredBeforeFetch(t *testing.T) {

	assert := assert.New(t)

	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: wavePlusDevice()}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore(wavePlusAddress))

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortAlreadyConfigured, result.Reason)
	assert.Empty(fetcher.calls, "no device fetch before the unique id guard")
}

func TestBluetoothDiscoveryShowsConfirmWithIdentifierPlaceholder(t *testing.T) {

	assert := assert.New(t)

	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: wavePlusDevice()}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore())

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})

	assert.Equal(StateBluetoothConfirm, result.State)
	assert.Equal("Wave Plus (012345)", result.Placeholders["name"])
}

func TestBluetoothDiscoveryPlaceholderWithoutIdentifier(t *testing.T) {

	assert := assert.New(t)

	device := wavePlusDevice()
	device.SerialNumber = ""
	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: device}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore())

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})

	assert.Equal(StateBluetoothConfirm, result.State)
	assert.Equal("Wave Plus", result.Placeholders["name"])
}

func TestConfirmDiscoveryCreatesEntry(t *testing.T) {

	assert := assert.New(t)

	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: wavePlusDevice()}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore())

	_ = f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})
	result := f.Step(context.Background(), ConfirmDiscovery{})

	assert.Equal(StateCreated, result.State)
	if assert.NotNil(result.Entry) {
		assert.Equal("Wave Plus (012345)", result.Entry.Title)
		assert.Equal(wavePlusAddress, result.Entry.Address)
	}
}

func TestBluetoothDiscoveryCannotConnect(t *testing.T) {

	assert := assert.New(t)

	// no resolvable handle
	f := newTestFlow(&fakeFetcher{}, &fakeSource{}, newFakeStore())
	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})
	assert.Equal(AbortCannotConnect, result.Reason)

	// transport failure
	fetcher := &fakeFetcher{errs: map[string]error{
		wavePlusAddress: &airthingsble.TransportError{Op: "connect", Err: errors.New("timed out")},
	}}
	f = newTestFlow(fetcher, &fakeSource{}, newFakeStore())
	result = f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})
	assert.Equal(AbortCannotConnect, result.Reason)
}

func TestBluetoothDiscoveryUnexpectedErrorAbortsUnknown(t *testing.T) {

	assert := assert.New(t)

	fetcher := &fakeFetcher{errs: map[string]error{wavePlusAddress: errors.New("short payload")}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore())

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortUnknown, result.Reason)
}

func TestListDevicesNoQualifyingAdvertisements(t *testing.T) {

	assert := assert.New(t)

	configured := wavePlusAdvertisement()

	wrongVendor := airthingsble.Advertisement{
		Address:          "11:22:33:44:55:66",
		Name:             "SomeBeacon",
		ManufacturerData: map[uint16][]byte{76: {1}},
	}
	wrongServices := airthingsble.Advertisement{
		Address:          "66:55:44:33:22:11",
		Name:             "Mystery",
		ManufacturerData: map[uint16][]byte{airthingsble.ManufacturerID: {1, 2, 3, 4}},
		ServiceUUIDs:     []string{"0000180a-0000-1000-8000-00805f9b34fb"},
	}

	source := &fakeSource{advertisements: []airthingsble.Advertisement{configured, wrongVendor, wrongServices}}
	fetcher := &fakeFetcher{}
	f := newTestFlow(fetcher, source, newFakeStore(wavePlusAddress))

	result := f.Step(context.Background(), ListDevices{})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortNoDevicesFound, result.Reason)
	assert.Empty(fetcher.calls)
}

func TestListDevicesNameEscapeHatch(t *testing.T) {

	assert := assert.New(t)

	tern := airthingsble.Advertisement{
		Address:          ternAddress,
		Name:             "Tern 2",
		ManufacturerData: map[uint16][]byte{airthingsble.ManufacturerID: {1, 2, 3, 4}},
		ServiceUUIDs:     []string{"0000180a-0000-1000-8000-00805f9b34fb"},
	}
	device := wavePlusDevice()
	device.Address = ternAddress
	device.Model = "9999"
	device.Name = "Tern 2"
	device.SerialNumber = ""

	source := &fakeSource{advertisements: []airthingsble.Advertisement{tern}}
	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{ternAddress: device}}
	f := newTestFlow(fetcher, source, newFakeStore())

	result := f.Step(context.Background(), ListDevices{})

	assert.Equal(StateUserSelect, result.State)
	assert.Equal("Tern 2", result.Choices[ternAddress])
}

func TestConfirmDiscoveryFirmwareUpgradeRequired(t *testing.T) {

	assert := assert.New(t)

	device := wavePlusDevice()
	device.Firmware = airthingsble.Firmware{Current: "1.3.4", Needed: "1.3.5", NeedUpgrade: true}

	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: device}}
	store := newFakeStore()
	f := newTestFlow(fetcher, &fakeSource{}, store)

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})
	assert.Equal(StateBluetoothConfirm, result.State)

	result = f.Step(context.Background(), ConfirmDiscovery{})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortFirmwareUpgradeRequired, result.Reason)
	assert.Nil(result.Entry)
	assert.False(store.Has(wavePlusAddress))
}

func TestBluetoothDiscoveryFetcherReturnsNoDevice(t *testing.T) {

	assert := assert.New(t)

	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: nil}}
	f := newTestFlow(fetcher, &fakeSource{}, newFakeStore())

	result := f.Step(context.Background(), BluetoothDiscovery{Info: wavePlusAdvertisement()})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortCannotConnect, result.Reason)
}

func TestSelectDeviceFirmwareUpgradeRequired(t *testing.T) {

	assert := assert.New(t)

	device := wavePlusDevice()
	device.Firmware = airthingsble.Firmware{Current: "1.3.4", Needed: "1.3.5", NeedUpgrade: true}

	source := &fakeSource{advertisements: []airthingsble.Advertisement{wavePlusAdvertisement()}}
	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: device}}
	store := newFakeStore()
	f := newTestFlow(fetcher, source, store)

	result := f.Step(context.Background(), ListDevices{})
	assert.Equal(StateUserSelect, result.State)

	result = f.Step(context.Background(), SelectDevice{Address: wavePlusAddress})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortFirmwareUpgradeRequired, result.Reason)
	assert.Nil(result.Entry)
	assert.False(store.Has(wavePlusAddress))
}

func TestSelectDeviceCreatesEntry(t *testing.T) {

	assert := assert.New(t)

	source := &fakeSource{advertisements: []airthingsble.Advertisement{wavePlusAdvertisement()}}
	fetcher := &fakeFetcher{devices: map[string]*airthingsble.Device{wavePlusAddress: wavePlusDevice()}}
	f := newTestFlow(fetcher, source, newFakeStore())

	result := f.Step(context.Background(), ListDevices{})
	assert.Equal(StateUserSelect, result.State)
	assert.Equal("Wave Plus (012345)", result.Choices[wavePlusAddress])

	result = f.Step(context.Background(), SelectDevice{Address: wavePlusAddress})

	assert.Equal(StateCreated, result.State)
	if assert.NotNil(result.Entry) {
		assert.Equal(wavePlusAddress, result.Entry.Address)
	}
}

func TestStepInputOutOfState(t *testing.T) {

	assert := assert.New(t)

	f := newTestFlow(&fakeFetcher{}, &fakeSource{}, newFakeStore())
	result := f.Step(context.Background(), ConfirmDiscovery{})

	assert.Equal(StateAborted, result.State)
	assert.Equal(AbortUnknown, result.Reason)
}
