package localstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srlcanvas/api/internal/canvas"
)

var fixedNow = time.Date(2026, time.February, 14, 9, 0, 0, 0, time.UTC)

func newTestStore() (*Store, *MemoryKV) {
	kv := NewMemoryKV()
	return New(kv, WithClock(func() time.Time { return fixedNow })), kv
}

func scored(t *testing.T, doc canvas.Document, id canvas.DimensionID, value int) canvas.Document {
	t.Helper()
	out, err := doc.WithDimension(id, canvas.DimensionPatch{Score: &value})
	require.NoError(t, err)
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	doc := scored(t, canvas.NewDocument(fixedNow), 3, 6)
	doc.Meta.Subject = "Acme"
	snapshot := canvas.Snapshot{
		Document:          doc,
		DarkMode:          true,
		RemoteID:          "canvas-1",
		SyncedFingerprint: doc.Fingerprint(),
		UpdatedAt:         fixedNow,
	}

	require.NoError(t, store.Write(ctx, "user-1", snapshot))

	got := store.Read(ctx, "user-1")
	require.NotNil(t, got)
	assert.Equal(t, snapshot.Document, got.Document)
	assert.True(t, got.DarkMode)
	assert.Equal(t, "canvas-1", got.RemoteID)
	assert.Equal(t, doc.Fingerprint(), got.SyncedFingerprint)
	assert.Equal(t, got.Fingerprint(), got.SyncedFingerprint, "content read back matches what was synced")
	assert.True(t, fixedNow.Equal(got.UpdatedAt))
}

func TestWriteNeverStoresUnnormalizedDates(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	doc := canvas.NewDocument(fixedNow)
	doc.Meta.Date = "14/03/2026"
	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: doc}))
	assert.Equal(t, "2026-03-14", storedDate(t, kv))

	doc.Meta.Date = "next tuesday"
	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: doc}))
	assert.Equal(t, "2026-02-14", storedDate(t, kv))
}

func storedDate(t *testing.T, kv *MemoryKV) string {
	t.Helper()
	raw, ok, err := kv.Get(context.Background(), ScopeKey(canvas.GuestScope))
	require.NoError(t, err)
	require.True(t, ok)
	var payload struct {
		Meta struct {
			Date string `json:"date"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload.Meta.Date
}

func TestReadRejectsMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	assert.Nil(t, store.Read(ctx, "missing"))

	for _, payload := range []string{
		`{not json`,
		`[]`,
		`null`,
		`{"meta": "x", "blocks": {}}`,
		`{"meta": {}, "blocks": 3}`,
	} {
		require.NoError(t, kv.Set(ctx, ScopeKey("broken"), payload))
		assert.Nil(t, store.Read(ctx, "broken"), payload)
	}
}

func TestReadRepairsFields(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	require.NoError(t, kv.Set(ctx, ScopeKey(canvas.GuestScope), `{
		"meta": {"startup": "Draft", "evaluator": "Researcher", "date": "14/02/2026"},
		"blocks": {"1": {"score": 6, "notes": "Draft", "evidence": "Interview notes"}},
		"darkMode": "yes",
		"remoteCanvasId": "   ",
		"updatedAt": "yesterday"
	}`))

	got := store.Read(ctx, canvas.GuestScope)
	require.NotNil(t, got)
	assert.Equal(t, "2026-02-14", got.Meta.Date)
	assert.Len(t, got.Dimensions, canvas.DimensionCount)
	assert.False(t, got.DarkMode)
	assert.Empty(t, got.RemoteID)
	assert.True(t, fixedNow.Equal(got.UpdatedAt))
}

func TestWriteStoresNullRemoteID(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: canvas.NewDocument(fixedNow), UpdatedAt: fixedNow}))

	raw, ok, err := kv.Get(ctx, ScopeKey(canvas.GuestScope))
	require.NoError(t, err)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	value, present := decoded["remoteCanvasId"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	doc := canvas.NewDocument(fixedNow)
	doc.Meta.Subject = "Guest work"
	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: doc, UpdatedAt: fixedNow}))

	assert.Nil(t, store.Read(ctx, "user-a"))

	guest := store.Read(ctx, canvas.GuestScope)
	require.NotNil(t, guest)
	assert.Equal(t, "Guest work", guest.Meta.Subject)

	require.NoError(t, store.Remove(ctx, canvas.GuestScope))
	assert.Nil(t, store.Read(ctx, canvas.GuestScope))
}

const legacyPayload = `{
	"state": {
		"meta": {"startup": "Legacy Startup", "evaluator": "Legacy Evaluator", "date": "14/02/2026"},
		"blocks": {"1": {"score": 8, "notes": "Nota legada", "evidence": "Evidencia legada"}},
		"darkMode": true
	},
	"version": 0
}`

func TestMigrateLegacyCopiesIntoEmptyGuest(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, LegacyKey, legacyPayload))

	migrated, err := store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	_, ok, _ := kv.Get(ctx, LegacyKey)
	assert.False(t, ok, "legacy slot must be deleted")

	guest := store.Read(ctx, canvas.GuestScope)
	require.NotNil(t, guest)
	assert.Equal(t, "Legacy Startup", guest.Meta.Subject)
	assert.Equal(t, "2026-02-14", guest.Meta.Date)
	require.NotNil(t, guest.Dimensions[1].Score)
	assert.Equal(t, 8, *guest.Dimensions[1].Score)
	assert.True(t, guest.DarkMode)

	migrated, err = store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, migrated, "second run is a no-op")
	again := store.Read(ctx, canvas.GuestScope)
	require.NotNil(t, again)
	assert.Equal(t, guest.Document, again.Document)
}

func TestMigrateLegacyKeepsMeaningfulGuest(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	doc := scored(t, canvas.NewDocument(fixedNow), 2, 5)
	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: doc, UpdatedAt: fixedNow}))
	require.NoError(t, kv.Set(ctx, LegacyKey, legacyPayload))

	migrated, err := store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)

	guest := store.Read(ctx, canvas.GuestScope)
	require.NotNil(t, guest)
	assert.Equal(t, "", guest.Meta.Subject)
	require.NotNil(t, guest.Dimensions[2].Score)
	assert.Nil(t, guest.Dimensions[1].Score)

	_, ok, _ := kv.Get(ctx, LegacyKey)
	assert.False(t, ok)
}

func TestMigrateLegacyOverwritesEmptyGuest(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()

	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: canvas.NewDocument(fixedNow), UpdatedAt: fixedNow}))
	require.NoError(t, kv.Set(ctx, LegacyKey, legacyPayload))

	migrated, err := store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, "Legacy Startup", store.Read(ctx, canvas.GuestScope).Meta.Subject)
}

func TestMigrateLegacyDropsCorruptSlot(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore()
	require.NoError(t, kv.Set(ctx, LegacyKey, `{"state": 4}`))

	migrated, err := store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)
	_, ok, _ := kv.Get(ctx, LegacyKey)
	assert.False(t, ok)
	assert.Nil(t, store.Read(ctx, canvas.GuestScope))
}

func TestStoreUsesConfiguredPolicy(t *testing.T) {
	ctx := context.Background()
	policy, err := canvas.NewExprPolicy(`filled >= 3`)
	require.NoError(t, err)

	kv := NewMemoryKV()
	store := New(kv, WithClock(func() time.Time { return fixedNow }), WithPolicy(policy))

	// one scored dimension is not enough under this policy, so the legacy
	// draft replaces it
	doc := scored(t, canvas.NewDocument(fixedNow), 2, 5)
	require.NoError(t, store.Write(ctx, canvas.GuestScope, canvas.Snapshot{Document: doc, UpdatedAt: fixedNow}))
	require.NoError(t, kv.Set(ctx, LegacyKey, legacyPayload))

	migrated, err := store.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)
}
