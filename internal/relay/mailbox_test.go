package relay

import (
	"context"
	"errors"
	"testing"

	"objrelay/internal/objstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeleteStore struct {
	objstore.Store
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("delete refused")
}

func TestSlotOverwriteWins(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemoryStore(objstore.Signer{})
	slot := NewSlot(store, OutboundKey("s"), false)

	require.NoError(t, slot.Put(ctx, []byte("first")))
	require.NoError(t, slot.Put(ctx, []byte("second")))

	body, ok, err := slot.Take(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(body))

	_, ok, err = slot.Take(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "the first message is gone, not queued")
}

func TestSlotPublicFlag(t *testing.T) {
	ctx := context.Background()
	store := objstore.NewMemoryStore(objstore.Signer{})
	slot := NewSlot(store, InboundKey("s"), true)
	assert.Equal(t, "server.msg.s", slot.Key())

	require.NoError(t, slot.Put(ctx, []byte("x")))
	public, err := store.Public(ctx, slot.Key())
	require.NoError(t, err)
	assert.True(t, public)
}

func TestSlotTakeKeepsMessageWhenDeleteFails(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore(objstore.Signer{})
	require.NoError(t, mem.Put(ctx, "client.msg.s", []byte("out"), false))

	_, ok, err := NewSlot(failingDeleteStore{mem}, "client.msg.s", false).Take(ctx)
	assert.Error(t, err)
	assert.False(t, ok)

	body, ok, err := NewSlot(mem, "client.msg.s", false).Take(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "out", string(body))
}
