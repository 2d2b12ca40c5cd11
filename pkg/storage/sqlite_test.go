package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "substrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()

	given, err := event.NewGiven("sensor_reading", "device-a",
		event.WithID("g1"),
		event.WithPayload(map[string]any{"entityId": "sensor-7", "value": 21.5}),
	)
	require.NoError(t, err)
	meant, err := event.NewMeant("interpretation", "device-a",
		event.Frame{Claim: "reading is nominal"},
		[]event.Reference{{EventID: "g1", Kind: event.KindSemantic}},
		event.WithID("m1"),
		event.WithParents("g1"),
	)
	require.NoError(t, err)

	for _, e := range []*event.Event{given, meant} {
		_, err := st.Append(e)
		require.NoError(t, err)
	}
	return st
}

func TestSaveAndLoadSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	st := seedStore(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshot(ctx, st.Export()))

	loaded, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.ExportVersion, loaded.Version)
	assert.Equal(t, st.Clock(), loaded.LogicalClock)
	require.Len(t, loaded.Events, 2)

	// Clock order is preserved.
	assert.Equal(t, "g1", loaded.Events[0].ID)
	assert.Equal(t, "m1", loaded.Events[1].ID)
	assert.Equal(t, event.Meant, loaded.Events[1].EpistemicType)
	require.NotNil(t, loaded.Events[1].Frame)
	assert.Equal(t, "reading is nominal", loaded.Events[1].Frame.Claim)
}

func TestLoadSnapshotEmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	snap, err := db.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.ExportVersion, snap.Version)
	assert.Equal(t, uint64(0), snap.LogicalClock)
	assert.Empty(t, snap.Events)
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshot(ctx, seedStore(t).Export()))

	small := store.New()
	only, err := event.NewGiven("note", "device-b", event.WithID("solo"))
	require.NoError(t, err)
	_, err = small.Append(only)
	require.NoError(t, err)
	require.NoError(t, db.SaveSnapshot(ctx, small.Export()))

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRestoreReplaysThroughValidation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveSnapshot(ctx, seedStore(t).Export()))

	st, res, err := db.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, st.Len())

	m, ok := st.Get("m1")
	require.True(t, ok)
	// Clocks are reassigned on replay, still respecting causal order.
	g, _ := st.Get("g1")
	assert.Greater(t, m.LogicalClock, g.LogicalClock)
}

func TestWatchPersistsCommittedEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	st := store.New()

	unsubscribe := db.Watch(st, nil)
	defer unsubscribe()

	e, err := event.NewGiven("note", "device-a", event.WithID("w1"))
	require.NoError(t, err)
	_, err = st.Append(e)
	require.NoError(t, err)

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Events, 1)
	assert.Equal(t, "w1", loaded.Events[0].ID)
	assert.Equal(t, uint64(1), loaded.LogicalClock)
}

func TestWatchPersistsPromotedEvents(t *testing.T) {
	db := openTestDB(t)
	st := store.New()
	defer db.Watch(st, nil)()

	child, err := event.NewGiven("note", "device-a",
		event.WithID("child"), event.WithParents("parent"))
	require.NoError(t, err)
	_, err = st.Append(child)
	require.NoError(t, err)

	// Parked, not committed, so not persisted yet.
	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	parent, err := event.NewGiven("note", "device-a", event.WithID("parent"))
	require.NoError(t, err)
	_, err = st.Append(parent)
	require.NoError(t, err)

	n, err = db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeviceIDStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "substrate.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	first, err := db.DeviceID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := db.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	second, err := reopened.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPersistEventUpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e, err := event.NewGiven("note", "device-a", event.WithID("dup"))
	require.NoError(t, err)
	e.LogicalClock = 1

	require.NoError(t, db.PersistEvent(ctx, e))
	require.NoError(t, db.PersistEvent(ctx, e))

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
