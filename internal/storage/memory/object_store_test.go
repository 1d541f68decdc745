package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oceansat/geoharvest/internal/harvest"
)

func object(id, guid string, current bool, gathered time.Time) *harvest.Object {
	return &harvest.Object{
		ID:         id,
		SourceID:   "esa",
		GUID:       guid,
		Current:    current,
		Extras:     map[string]string{harvest.ExtraRestartDate: gathered.Format(time.RFC3339)},
		GatheredAt: gathered,
	}
}

func TestObjectStoreSaveAndUpdate(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	ctx := context.Background()
	now := time.Now().UTC()

	obj := object("obj-1", "g1", false, now)
	require.NoError(t, store.Save(ctx, obj))
	require.Error(t, store.Save(ctx, obj))

	obj.Current = true
	obj.DatasetID = "ds-1"
	require.NoError(t, store.Update(ctx, obj))

	stored := store.All()
	require.Len(t, stored, 1)
	require.True(t, stored[0].Current)
	require.Equal(t, "ds-1", stored[0].DatasetID)
}

func TestObjectStoreUpdateUnknown(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	err := store.Update(context.Background(), object("missing", "g1", false, time.Now()))
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestObjectStoreMostRecent(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, object("obj-1", "g1", true, base)))
	require.NoError(t, store.Save(ctx, object("obj-2", "g2", true, base.AddDate(0, 0, 5))))
	require.NoError(t, store.Save(ctx, object("obj-3", "g3", false, base.AddDate(0, 0, 9))))

	got, err := store.MostRecent(ctx, "esa")
	require.NoError(t, err)
	// Non-current objects never win.
	require.Equal(t, "obj-2", got.ID)

	_, err = store.MostRecent(ctx, "unknown")
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestObjectStoreMarkSuperseded(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Save(ctx, object("obj-1", "g1", true, now)))
	require.NoError(t, store.Save(ctx, object("obj-2", "g1", true, now.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, object("obj-3", "g2", true, now)))

	require.NoError(t, store.MarkSuperseded(ctx, "esa", "g1", "obj-2"))

	for _, obj := range store.All() {
		switch obj.ID {
		case "obj-1":
			require.False(t, obj.Current)
		default:
			require.True(t, obj.Current)
		}
	}
}

func TestObjectStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	ctx := context.Background()

	obj := object("obj-1", "g1", true, time.Now().UTC())
	require.NoError(t, store.Save(ctx, obj))

	got, err := store.MostRecent(ctx, "esa")
	require.NoError(t, err)
	got.Extras["mutated"] = "yes"

	fresh, err := store.MostRecent(ctx, "esa")
	require.NoError(t, err)
	require.NotContains(t, fresh.Extras, "mutated")
}
