package airthingsble

// ManufacturerID is the Bluetooth SIG company identifier of Airthings AS.
const ManufacturerID uint16 = 820

// ServiceUUIDs lists the advertised GATT services of the supported
// device generations.
var ServiceUUIDs = []string{
	"b42e1f6e-ade7-11e4-89d3-123b93f75cba",
	"b42e4a8e-ade7-11e4-89d3-123b93f75cba",
	"b42e1c08-ade7-11e4-89d3-123b93f75cba",
	"b42e3882-ade7-11e4-89d3-123b93f75cba",
}

// Advertisement is one received BLE broadcast payload.
type Advertisement struct {
	Address          string
	Name             string
	SerialNumber     string
	ManufacturerData map[uint16][]byte
	ServiceUUIDs     []string
}

func (a Advertisement) HasManufacturerID(id uint16) bool {
	_, ok := a.ManufacturerData[id]
	return ok
}

func (a Advertisement) AdvertisesService(uuids []string) bool {
	for _, svc := range a.ServiceUUIDs {
		for _, want := range uuids {
			if svc == want {
				return true
			}
		}
	}
	return false
}
