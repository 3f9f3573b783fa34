package port

import (
	"context"

	"github.com/LaStrada/airthings2mqtt/pkg/airthings"
)

// CloudClient is the cloud SDK surface: one call per poll interval
// returning the account's devices keyed by serial number, or the SDK's
// domain error.
type CloudClient interface {
	UpdateDevices(ctx context.Context) (map[string]airthings.Device, error)
}
