package airthingsble

import (
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

const (
	deviceInfoServiceUUID   = "180a"
	modelNumberCharUUID     = "2a24"
	serialNumberCharUUID    = "2a25"
	firmwareRevisionChar    = "2a26"
	currentValuesServiceStr = "b42e1c08ade711e489d3123b93f75cba"
	currentValuesCharStr    = "b42e2a68ade711e489d3123b93f75cba"
)

// Reader scans for and reads Airthings devices over a shared BLE
// adapter. The adapter must be registered with ble.SetDefaultDevice
// before use.
type Reader struct {
	ScanDuration time.Duration
	Retries      int
}

func NewReader(scanDuration time.Duration, retries int) *Reader {
	// a reader that never attempts a read is useless
	if retries < 1 {
		retries = 1
	}
	return &Reader{
		ScanDuration: scanDuration,
		Retries:      retries,
	}
}

// Discover collects currently visible advertisements carrying the
// Airthings manufacturer identifier.
func (r *Reader) Discover(ctx context.Context) ([]Advertisement, error) {
	scanCtx := ble.WithSigHandler(context.WithTimeout(ctx, r.ScanDuration))
	ads, err := ble.Find(scanCtx, false, advertisementFilter)
	if err != nil {
		switch errors.Cause(err) {
		case nil, context.DeadlineExceeded:
		case context.Canceled:
			return nil, &TransportError{Op: "scan", Err: err}
		default:
			return nil, &TransportError{Op: "scan", Err: err}
		}
	}

	found := make([]Advertisement, 0, len(ads))
	for _, a := range ads {
		found = append(found, fromBLEAdvertisement(a))
	}
	return found, nil
}

// Watch forwards every matching advertisement to fn until ctx ends.
func (r *Reader) Watch(ctx context.Context, fn func(Advertisement)) error {
	err := ble.Scan(ctx, false, func(a ble.Advertisement) {
		fn(fromBLEAdvertisement(a))
	}, advertisementFilter)
	if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
		return nil
	}
	if err != nil {
		return &TransportError{Op: "watch", Err: err}
	}
	return nil
}

// UpdateDevice connects to the device at address and reads identity,
// firmware and the current sensor values. Link failures come back as
// *TransportError; a malformed payload is a plain error.
func (r *Reader) UpdateDevice(ctx context.Context, address string) (*Device, error) {
	var lastErr error
	for i := 0; i < r.Retries; i++ {
		device, err := r.readDevice(ctx, address)
		if err == nil {
			return device, nil
		}
		lastErr = err
		var te *TransportError
		if !errors.As(err, &te) {
			// payload errors do not improve with retries
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Reader) readDevice(ctx context.Context, address string) (*Device, error) {
	filter := func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), address)
	}

	connCtx := ble.WithSigHandler(context.WithTimeout(ctx, r.ScanDuration))
	cln, err := ble.Connect(connCtx, filter)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		close(done)
	}()
	defer func() {
		_ = cln.CancelConnection()
		<-done
	}()

	profile, err := cln.DiscoverProfile(true)
	if err != nil {
		return nil, &TransportError{Op: "discover", Err: err}
	}

	device := &Device{Address: address}

	if c := findCharacteristic(profile, modelNumberCharUUID); c != nil {
		if raw, err := cln.ReadCharacteristic(c); err == nil {
			device.Model = strings.TrimSpace(string(raw))
		}
	}
	if c := findCharacteristic(profile, serialNumberCharUUID); c != nil {
		raw, err := cln.ReadCharacteristic(c)
		if err != nil {
			return nil, &TransportError{Op: "read serial", Err: err}
		}
		device.SerialNumber = device.Model + strings.TrimSpace(string(raw))
	}
	if c := findCharacteristic(profile, firmwareRevisionChar); c != nil {
		if raw, err := cln.ReadCharacteristic(c); err == nil {
			device.Firmware = resolveFirmware(device.Model, strings.TrimSpace(string(raw)))
		}
	}

	valuesChar := findCharacteristic(profile, currentValuesCharStr)
	if valuesChar == nil {
		return nil, errors.New("device has no current values characteristic")
	}
	payload, err := cln.ReadCharacteristic(valuesChar)
	if err != nil {
		return nil, &TransportError{Op: "read values", Err: err}
	}
	readings, err := parseCurrentValues(payload)
	if err != nil {
		return nil, err
	}
	device.Sensors = readings
	device.Name = device.FriendlyName()

	return device, nil
}

func advertisementFilter(a ble.Advertisement) bool {
	if !a.Connectable() {
		return false
	}
	data := a.ManufacturerData()
	if len(data) < 2 {
		return false
	}
	companyID := uint16(data[0]) | uint16(data[1])<<8
	return companyID == ManufacturerID
}

func fromBLEAdvertisement(a ble.Advertisement) Advertisement {
	adv := Advertisement{
		Address:          a.Addr().String(),
		Name:             a.LocalName(),
		ManufacturerData: map[uint16][]byte{},
	}
	if data := a.ManufacturerData(); len(data) >= 2 {
		companyID := uint16(data[0]) | uint16(data[1])<<8
		adv.ManufacturerData[companyID] = data[2:]
		if companyID == ManufacturerID {
			adv.SerialNumber = manufacturerDataSerial(data[2:])
		}
	}
	for _, svc := range a.Services() {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, canonicalUUID(svc))
	}
	return adv
}

func findCharacteristic(profile *ble.Profile, uuid string) *ble.Characteristic {
	target, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(target) {
				return c
			}
		}
	}
	return nil
}

// canonicalUUID renders a UUID in dashed lowercase form, matching how
// service identifiers are published elsewhere.
func canonicalUUID(u ble.UUID) string {
	s := u.String()
	if len(s) != 32 {
		return s
	}
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}
