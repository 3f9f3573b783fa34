package port

import (
	"context"

	"github.com/pkg/errors"

	"github.com/LaStrada/airthings2mqtt/pkg/airthingsble"
)

// ErrDeviceNotFound reports that no connectable handle could be
// resolved for an advertised address.
var ErrDeviceNotFound = errors.New("no connectable device for address")

// AdvertisementSource enumerates the advertisements currently visible
// on the adapter.
type AdvertisementSource interface {
	DiscoveredAdvertisements(ctx context.Context) ([]airthingsble.Advertisement, error)
}

// AdvertisementWatcher delivers advertisements as they arrive, driving
// the automatic discovery path.
type AdvertisementWatcher interface {
	Watch(ctx context.Context, fn func(airthingsble.Advertisement)) error
}

// DeviceDataFetcher connects to one device and reads identity, firmware
// and sensor data. Implementations return ErrDeviceNotFound when the
// address cannot be resolved and *airthingsble.TransportError for link
// failures; anything else is an unexpected error and is propagated,
// never swallowed.
type DeviceDataFetcher interface {
	FetchDevice(ctx context.Context, address string) (*airthingsble.Device, error)
}
