package ble

import (
	"context"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LaStrada/airthings2mqtt/internal/core/port"
	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

// Adapter exposes the shared BLE device through the scanning and
// reading ports. A process owns at most one Adapter since go-ble keeps
// a single default device.
type Adapter struct {
	reader *airthingsble.Reader
	logger *zap.Logger
}

var _ port.AdvertisementSource = (*Adapter)(nil)
var _ port.AdvertisementWatcher = (*Adapter)(nil)
var _ port.DeviceDataFetcher = (*Adapter)(nil)

// NewAdapter opens the host HCI device and registers it as the go-ble
// default device.
func NewAdapter(scanDuration time.Duration, retries int, logger *zap.Logger) (*Adapter, error) {
	hci, err := linux.NewDevice()
	if err != nil {
		return nil, errors.Wrap(err, "open bluetooth device")
	}
	goble.SetDefaultDevice(hci)

	return &Adapter{
		reader: airthingsble.NewReader(scanDuration, retries),
		logger: logger.Named("ble"),
	}, nil
}

func (a *Adapter) DiscoveredAdvertisements(ctx context.Context) ([]airthingsble.Advertisement, error) {
	a.logger.Debug("scanning for advertisements", zap.Duration("duration", a.reader.ScanDuration))
	ads, err := a.reader.Discover(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("scan finished", zap.Int("advertisements", len(ads)))
	return ads, nil
}

func (a *Adapter) Watch(ctx context.Context, fn func(airthingsble.Advertisement)) error {
	a.logger.Debug("watching advertisements")
	return a.reader.Watch(ctx, fn)
}

// FetchDevice connects to the device at address and reads its identity,
// firmware and sensor values. A connect timeout means the address never
// resolved to a connectable device and maps to port.ErrDeviceNotFound.
func (a *Adapter) FetchDevice(ctx context.Context, address string) (*airthingsble.Device, error) {
	device, err := a.reader.UpdateDevice(ctx, address)
	if err != nil {
		var te *airthingsble.TransportError
		if errors.As(err, &te) && te.Op == "connect" && errors.Is(err, context.DeadlineExceeded) {
			return nil, port.ErrDeviceNotFound
		}
		return nil, err
	}
	return device, nil
}
