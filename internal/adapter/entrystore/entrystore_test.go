package entrystore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LaStrada/airthings2mqtt/internal/core/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {

	assert := assert.New(t)

	dir := t.TempDir()

	store, err := NewFileStore(dir)
	assert.NoError(err)

	entry := domain.ConfigEntry{Title: "Wave Plus (012345)", Address: "A4:DA:32:00:11:22"}
	assert.NoError(store.Add(entry))
	assert.True(store.Has("a4:da:32:00:11:22"), "address match is case insensitive")

	// reload from disk
	reloaded, err := NewFileStore(dir)
	assert.NoError(err)
	assert.True(reloaded.Has(entry.Address))

	list := reloaded.List()
	if assert.Len(list, 1) {
		assert.Equal(entry.Title, list[0].Title)
	}

	assert.NoError(reloaded.Remove(entry.Address))
	assert.False(reloaded.Has(entry.Address))
}

func TestFileStoreEmptyDir(t *testing.T) {

	assert := assert.New(t)

	store, err := NewFileStore(t.TempDir())
	assert.NoError(err)
	assert.Empty(store.List())
	assert.False(store.Has("missing"))
}

func TestMemoryStore(t *testing.T) {

	assert := assert.New(t)

	store := NewMemoryStore()
	assert.NoError(store.Add(domain.ConfigEntry{Title: "Bedroom", Address: "AA:BB:CC:DD:EE:FF"}))
	assert.NoError(store.Add(domain.ConfigEntry{Title: "Hall", Address: "11:22:33:44:55:66"}))

	list := store.List()
	if assert.Len(list, 2) {
		// sorted by address
		assert.Equal("11:22:33:44:55:66", list[0].Address)
	}

	assert.NoError(store.Remove("aa:bb:cc:dd:ee:ff"))
	assert.False(store.Has("AA:BB:CC:DD:EE:FF"))
}
