package relay

import (
	"context"
	"testing"
	"time"

	"objrelay/internal/objstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitChannelPublishesFreshRequestKey(t *testing.T) {
	h := newHarness(t)
	dir := NewDirectory(h.store, 3, time.Hour)
	ctx := context.Background()

	seen := map[string]bool{}
	for round := 0; round < 20; round++ {
		for id := 0; id < dir.Channels(); id++ {
			key, err := dir.InitChannel(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, key, h.channelTarget(t, id))
			assert.Regexp(t, `^request-[0-9a-f]{32}$`, key)
			assert.False(t, seen[key], "request key %s reused", key)
			seen[key] = true
		}
	}

	public, err := h.store.Public(ctx, ChannelKey(0))
	require.NoError(t, err)
	assert.True(t, public, "channels are read anonymously")
}

func TestInitChannelRejectsOutOfRange(t *testing.T) {
	dir := NewDirectory(objstore.NewMemoryStore(objstore.Signer{}), 5, time.Hour)
	_, err := dir.InitChannel(context.Background(), 5)
	assert.Error(t, err)
	_, err = dir.InitChannel(context.Background(), -1)
	assert.Error(t, err)
}

func TestInitAllReportsSigningFailures(t *testing.T) {
	// no signing key
	store := objstore.NewMemoryStore(objstore.Signer{})
	dir := NewDirectory(store, 2, time.Hour)
	err := dir.InitAll(context.Background())
	assert.ErrorIs(t, err, objstore.ErrMissingSigningKey)
	assert.Equal(t, 0, store.Len())
}
