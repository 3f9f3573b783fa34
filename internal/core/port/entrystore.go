package port

import (
	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
)

// EntryStore is the explicit config-entry registry: one entry per
// paired device, persisted across restarts. Addresses act as unique
// ids, so Has guards the already-configured abort.
type EntryStore interface {
	Add(entry domain.ConfigEntry) error
	Remove(address string) error
	Has(address string) bool
	List() []domain.ConfigEntry
}
