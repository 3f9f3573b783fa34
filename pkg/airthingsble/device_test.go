package airthingsble

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func encodeCurrentValues(t *testing.T, raw rawCurrentValues) []byte {
	t.Helper()
	var buf bytes.Buffer
	assert.NoError(t, binary.Write(&buf, binary.LittleEndian, raw))
	return buf.Bytes()
}

func TestParseCurrentValues(t *testing.T) {

	assert := assert.New(t)

	payload := encodeCurrentValues(t, rawCurrentValues{
		Version:     1,
		Humidity:    77, // halves of a percent
		RadonShort:  40,
		RadonLong:   55,
		Temperature: 2150, // centidegrees
		Pressure:    50065,
		Co2:         640,
		Voc:         120,
	})

	readings, err := parseCurrentValues(payload)
	assert.NoError(err)

	byType := map[string]float64{}
	for _, r := range readings {
		byType[r.Type] = r.Value
	}
	assert.Equal(38.5, byType["humidity"])
	assert.Equal(40.0, byType["radonShortTermAvg"])
	assert.Equal(55.0, byType["radonLongTermAvg"])
	assert.Equal(21.5, byType["temp"])
	assert.Equal(1001.3, byType["pressure"])
	assert.Equal(640.0, byType["co2"])
	assert.Equal(120.0, byType["voc"])
}

func TestParseCurrentValuesUnsupportedVersion(t *testing.T) {
	payload := encodeCurrentValues(t, rawCurrentValues{Version: 2})
	_, err := parseCurrentValues(payload)
	assert.Error(t, err)
}

func TestParseCurrentValuesShortPayload(t *testing.T) {
	_, err := parseCurrentValues([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFriendlyNameAndIdentifier(t *testing.T) {

	assert := assert.New(t)

	dev := Device{Model: "2930", SerialNumber: "2930123456", Name: "Airthings Wave+"}
	assert.Equal("Wave Plus", dev.FriendlyName())
	assert.Equal("123456", dev.Identifier())

	unknown := Device{Model: "9999", Name: "Tern 2"}
	assert.Equal("Tern 2", unknown.FriendlyName())
	assert.Equal("", unknown.Identifier())
}

func TestResolveFirmware(t *testing.T) {

	assert := assert.New(t)

	fw := resolveFirmware("2930", "G-BLE-1.3.4-master+0")
	assert.True(fw.NeedUpgrade)
	assert.Equal("1.3.5", fw.Needed)

	fw = resolveFirmware("2930", "1.3.5")
	assert.False(fw.NeedUpgrade)

	// unknown model has no minimum
	fw = resolveFirmware("2960", "0.0.1")
	assert.False(fw.NeedUpgrade)
}

func TestAdvertisementMatching(t *testing.T) {

	assert := assert.New(t)

	adv := Advertisement{
		Address:          "A4:DA:32:00:11:22",
		Name:             "Airthings Wave+",
		ManufacturerData: map[uint16][]byte{ManufacturerID: {0x40, 0xE2, 0xA9, 0xAE}},
		ServiceUUIDs:     []string{"b42e1c08-ade7-11e4-89d3-123b93f75cba"},
	}
	assert.True(adv.HasManufacturerID(ManufacturerID))
	assert.True(adv.AdvertisesService(ServiceUUIDs))

	other := Advertisement{ManufacturerData: map[uint16][]byte{76: {1}}}
	assert.False(other.HasManufacturerID(ManufacturerID))
	assert.False(other.AdvertisesService(ServiceUUIDs))
}

func TestManufacturerDataSerial(t *testing.T) {
	assert.Equal(t, "2930012345", manufacturerDataSerial([]byte{0xB9, 0x70, 0xA4, 0xAE}))
	assert.Equal(t, "", manufacturerDataSerial([]byte{0x01}))
}
