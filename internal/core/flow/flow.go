package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

type State string

const (
	StateIdle             State = "idle"
	StateBluetoothConfirm State = "bluetooth_confirm"
	StateUserSelect       State = "user_select"
	StateCreated          State = "created"
	StateAborted          State = "aborted"
)

type AbortReason string

const (
	AbortAlreadyConfigured       AbortReason = "already_configured"
	AbortCannotConnect           AbortReason = "cannot_connect"
	AbortUnknown                 AbortReason = "unknown"
	AbortFirmwareUpgradeRequired AbortReason = "firmware_upgrade_required"
	AbortNoDevicesFound          AbortReason = "no_devices_found"
)

// nameEscapeHatch admits devices whose advertisement misses the known
// service set but whose name marks them as supported anyway.
const nameEscapeHatch = "Tern"

// Discovery pairs an advertisement with the device data read from it.
// It lives for one flow session only.
type Discovery struct {
	Name   string
	Info   airthingsble.Advertisement
	Device airthingsble.Device
}

// Result is the outcome of one step: a form to show, a created entry,
// or an abort with its reason.
type Result struct {
	State        State
	Reason       AbortReason
	Placeholders map[string]string
	Choices      map[string]string
	Entry        *domain.ConfigEntry
}

type Input interface {
	flowInput()
}

// BluetoothDiscovery starts the automatic path from one received
// advertisement.
type BluetoothDiscovery struct {
	Info airthingsble.Advertisement
}

// ConfirmDiscovery is the user's confirmation of an automatically
// discovered device.
type ConfirmDiscovery struct{}

// ListDevices runs the manual scan step.
type ListDevices struct{}

// SelectDevice is the user's pick from the manual scan choices.
type SelectDevice struct {
	Address string
}

func (BluetoothDiscovery) flowInput() {}
func (ConfirmDiscovery) flowInput()   {}
func (ListDevices) flowInput()        {}
func (SelectDevice) flowInput()       {}

// Flow is one pairing session: an explicit state value plus the session
// context (discovered devices, title placeholders). Step advances it.
// A Flow is owned by a single goroutine; terminal states are sticky.
type Flow struct {
	fetcher port.DeviceDataFetcher
	source  port.AdvertisementSource
	store   port.EntryStore
	logger  *zap.Logger

	state        State
	discovered   map[string]Discovery
	placeholders map[string]string
	pending      *Discovery
}

func New(fetcher port.DeviceDataFetcher, source port.AdvertisementSource, store port.EntryStore, logger *zap.Logger) *Flow {
	return &Flow{
		fetcher:      fetcher,
		source:       source,
		store:        store,
		logger:       logger,
		state:        StateIdle,
		discovered:   map[string]Discovery{},
		placeholders: map[string]string{},
	}
}

func (f *Flow) State() State {
	return f.state
}

// Step feeds one input into the state machine and returns the outcome.
// Inputs that do not fit the current state abort with AbortUnknown.
func (f *Flow) Step(ctx context.Context, input Input) Result {
	switch in := input.(type) {
	case BluetoothDiscovery:
		if f.state != StateIdle {
			return f.abort(AbortUnknown)
		}
		return f.stepBluetooth(ctx, in.Info)
	case ConfirmDiscovery:
		if f.state != StateBluetoothConfirm || f.pending == nil {
			return f.abort(AbortUnknown)
		}
		return f.createEntry(*f.pending)
	case ListDevices:
		if f.state != StateIdle && f.state != StateUserSelect {
			return f.abort(AbortUnknown)
		}
		return f.stepListDevices(ctx)
	case SelectDevice:
		if f.state != StateUserSelect {
			return f.abort(AbortUnknown)
		}
		return f.stepSelect(in.Address)
	default:
		return f.abort(AbortUnknown)
	}
}

func (f *Flow) stepBluetooth(ctx context.Context, info airthingsble.Advertisement) Result {
	f.logger.Debug("flow: bluetooth discovery", zap.String("address", info.Address))

	// unique id check comes before any device fetch
	if f.store.Has(info.Address) {
		return f.abort(AbortAlreadyConfigured)
	}

	device, err := f.fetcher.FetchDevice(ctx, info.Address)
	if err != nil {
		return f.abortFetch(info.Address, err)
	}
	if device == nil {
		f.logger.Error("flow: fetch returned no device", zap.String("address", info.Address))
		return f.abort(AbortCannotConnect)
	}

	name := deviceTitle(device)
	f.placeholders["name"] = name
	f.pending = &Discovery{Name: name, Info: info, Device: *device}
	f.state = StateBluetoothConfirm

	return Result{
		State:        StateBluetoothConfirm,
		Placeholders: f.placeholders,
	}
}

func (f *Flow) stepListDevices(ctx context.Context) Result {
	advertisements, err := f.source.DiscoveredAdvertisements(ctx)
	if err != nil {
		f.logger.Error("flow: advertisement enumeration failed", zap.Error(err))
		return f.abort(AbortCannotConnect)
	}

	for _, info := range advertisements {
		if f.store.Has(info.Address) {
			continue
		}
		if _, seen := f.discovered[info.Address]; seen {
			continue
		}
		if !info.HasManufacturerID(airthingsble.ManufacturerID) {
			continue
		}
		if !info.AdvertisesService(airthingsble.ServiceUUIDs) && !strings.Contains(info.Name, nameEscapeHatch) {
			f.logger.Warn("flow: skipping unsupported device", zap.String("name", info.Name))
			continue
		}

		device, err := f.fetcher.FetchDevice(ctx, info.Address)
		if err != nil {
			return f.abortFetch(info.Address, err)
		}
		if device == nil {
			f.logger.Error("flow: fetch returned no device", zap.String("address", info.Address))
			return f.abort(AbortCannotConnect)
		}
		f.discovered[info.Address] = Discovery{Name: deviceTitle(device), Info: info, Device: *device}
	}

	if len(f.discovered) == 0 {
		return f.abort(AbortNoDevicesFound)
	}

	choices := make(map[string]string, len(f.discovered))
	for address, discovery := range f.discovered {
		choices[address] = discovery.Name
	}
	f.state = StateUserSelect

	return Result{
		State:   StateUserSelect,
		Choices: choices,
	}
}

func (f *Flow) stepSelect(address string) Result {
	discovery, ok := f.discovered[address]
	if !ok {
		return f.abort(AbortUnknown)
	}
	if f.store.Has(address) {
		return f.abort(AbortAlreadyConfigured)
	}

	f.placeholders["name"] = discovery.Name
	f.pending = &discovery

	return f.createEntry(discovery)
}

// createEntry is the single gate into StateCreated. The firmware check
// sits here so that the confirm step, which has no user in the loop,
// applies it the same way the select step does.
func (f *Flow) createEntry(discovery Discovery) Result {
	fw := discovery.Device.Firmware
	f.logger.Debug("flow: firmware",
		zap.String("current", fw.Current),
		zap.String("needed", fw.Needed),
		zap.Bool("need_upgrade", fw.NeedUpgrade))
	if fw.NeedUpgrade {
		return f.abort(AbortFirmwareUpgradeRequired)
	}

	entry := domain.ConfigEntry{
		Title:   discovery.Name,
		Address: discovery.Info.Address,
	}
	f.state = StateCreated
	return Result{
		State: StateCreated,
		Entry: &entry,
	}
}

func (f *Flow) abort(reason AbortReason) Result {
	f.state = StateAborted
	return Result{
		State:  StateAborted,
		Reason: reason,
	}
}

// abortFetch maps a device-fetch error onto an abort reason: resolve
// and link failures are "cannot connect", anything unexpected is
// surfaced as "unknown" instead of being swallowed.
func (f *Flow) abortFetch(address string, err error) Result {
	var transportErr *airthingsble.TransportError
	switch {
	case errors.Is(err, port.ErrDeviceNotFound):
		f.logger.Debug("flow: no connectable device", zap.String("address", address))
		return f.abort(AbortCannotConnect)
	case errors.As(err, &transportErr):
		f.logger.Error("flow: error connecting to device", zap.String("address", address), zap.Error(err))
		return f.abort(AbortCannotConnect)
	default:
		f.logger.Error("flow: unexpected device error", zap.String("address", address), zap.Error(err))
		return f.abort(AbortUnknown)
	}
}

func deviceTitle(device *airthingsble.Device) string {
	name := device.FriendlyName()
	if identifier := device.Identifier(); identifier != "" {
		name = fmt.Sprintf("%s (%s)", name, identifier)
	}
	return name
}
