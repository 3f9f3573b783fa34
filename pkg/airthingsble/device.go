package airthingsble

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Device is the identity plus latest readings of one BLE device,
// assembled from a connect-and-read pass.
type Device struct {
	Address      string
	Name         string
	SerialNumber string
	Model        string
	Firmware     Firmware
	Sensors      []SensorReading
}

type SensorReading struct {
	Type  string
	Value float64
}

type Firmware struct {
	Current     string
	Needed      string
	NeedUpgrade bool
}

// TransportError marks failures of the BLE link itself, as opposed to
// unexpected payload or protocol problems.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ble %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var modelNames = map[string]string{
	"2900": "Wave",
	"2920": "Wave Mini",
	"2930": "Wave Plus",
	"2950": "Wave Radon",
	"2960": "View Plus",
	"2980": "View Radon",
}

// minFirmware holds the oldest firmware per model series that exposes
// the characteristics this package reads.
var minFirmware = map[string]string{
	"2900": "1.2.4",
	"2930": "1.3.5",
	"2950": "1.2.2",
}

// FriendlyName resolves the marketing name of the model series, falling
// back to the advertised name.
func (d Device) FriendlyName() string {
	if name, ok := modelNames[d.Model]; ok {
		return name
	}
	return d.Name
}

// Identifier is the short serial suffix shown to users to tell devices
// of the same model apart. Empty when the serial is unknown.
func (d Device) Identifier() string {
	if len(d.SerialNumber) < 6 {
		return ""
	}
	return d.SerialNumber[len(d.SerialNumber)-6:]
}

func resolveFirmware(model, current string) Firmware {
	fw := Firmware{Current: current}
	needed, ok := minFirmware[model]
	if !ok {
		return fw
	}
	fw.Needed = needed
	fw.NeedUpgrade = versionLess(current, needed)
	return fw
}

// versionLess compares dotted numeric versions, ignoring any non-numeric
// decoration like "G-BLE-1.5.5-master+0".
func versionLess(a, b string) bool {
	av, bv := versionFields(a), versionFields(b)
	for i := 0; i < len(av) || i < len(bv); i++ {
		var x, y int
		if i < len(av) {
			x = av[i]
		}
		if i < len(bv) {
			y = bv[i]
		}
		if x != y {
			return x < y
		}
	}
	return false
}

func versionFields(v string) []int {
	var fields []int
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == '.' || r == '-' || r == '+' }) {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		fields = append(fields, n)
	}
	return fields
}

// manufacturerDataSerial recovers the serial number encoded in the
// advertisement's manufacturer payload.
func manufacturerDataSerial(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	serial := uint32(data[0])
	serial |= uint32(data[1]) << 8
	serial |= uint32(data[2]) << 16
	serial |= uint32(data[3]) << 24
	return fmt.Sprint(serial)
}

type rawCurrentValues struct {
	Version     uint8
	Humidity    uint8
	Unk1        uint8
	Unk2        uint8
	RadonShort  uint16
	RadonLong   uint16
	Temperature uint16
	Pressure    uint16
	Co2         uint16
	Voc         uint16
}

// parseCurrentValues unpacks the little-endian current-values
// characteristic into engineering units.
func parseCurrentValues(payload []byte) ([]SensorReading, error) {
	var raw rawCurrentValues
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &raw); err != nil {
		return nil, errors.Wrap(err, "short current values payload")
	}
	if raw.Version != 1 {
		return nil, errors.Errorf("unsupported current values version %d", raw.Version)
	}
	return []SensorReading{
		{Type: "radonShortTermAvg", Value: float64(raw.RadonShort)},
		{Type: "radonLongTermAvg", Value: float64(raw.RadonLong)},
		{Type: "temp", Value: float64(raw.Temperature) / 100.0},
		{Type: "humidity", Value: float64(raw.Humidity) / 2.0},
		{Type: "pressure", Value: float64(raw.Pressure) / 50.0},
		{Type: "co2", Value: float64(raw.Co2)},
		{Type: "voc", Value: float64(raw.Voc)},
	}, nil
}
