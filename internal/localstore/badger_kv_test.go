package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerKVInMemory(t *testing.T) {
	kv, err := OpenBadgerKV(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()
	_, ok, err := kv.Get(ctx, "slot")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "slot", "value"))
	value, ok, err := kv.Get(ctx, "slot")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", value)

	require.NoError(t, kv.Delete(ctx, "slot"))
	_, ok, err = kv.Get(ctx, "slot")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerKVPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := OpenBadgerKV(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, ScopeKey("guest"), `{"meta":{}}`))
	require.NoError(t, kv.Close())

	reopened, err := OpenBadgerKV(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, ScopeKey("guest"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"meta":{}}`, value)
}

func TestOpenBadgerKVRequiresPath(t *testing.T) {
	_, err := OpenBadgerKV(BadgerConfig{})
	assert.Error(t, err)
}
