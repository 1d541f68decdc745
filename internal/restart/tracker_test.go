package restart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oceansat/geoharvest/internal/harvest"
	"github.com/oceansat/geoharvest/internal/storage/memory"
)

func TestResumeCursorNoHistory(t *testing.T) {
	t.Parallel()

	tracker := New(memory.NewObjectStore())
	cursor, err := tracker.ResumeCursor(context.Background(), "esa")
	require.NoError(t, err)
	require.Equal(t, harvest.Wildcard, cursor)
}

func TestResumeCursorHighWaterMark(t *testing.T) {
	t.Parallel()

	store := memory.NewObjectStore()
	ctx := context.Background()

	older := &harvest.Object{
		ID:       "obj-1",
		SourceID: "esa",
		GUID:     "guid-1",
		Current:  true,
		Extras: map[string]string{
			harvest.ExtraRestartDate: "2024-01-10T00:00:00Z",
		},
		GatheredAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	newer := &harvest.Object{
		ID:       "obj-2",
		SourceID: "esa",
		GUID:     "guid-2",
		Current:  true,
		Extras: map[string]string{
			harvest.ExtraRestartDate: "2024-01-20T00:00:00Z",
		},
		GatheredAt: time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	tracker := New(store)
	cursor, err := tracker.ResumeCursor(ctx, "esa")
	require.NoError(t, err)
	require.Equal(t, "2024-01-20T00:00:00Z", cursor)
}

func TestResumeCursorMissingRestartDate(t *testing.T) {
	t.Parallel()

	store := memory.NewObjectStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &harvest.Object{
		ID:         "obj-1",
		SourceID:   "esa",
		GUID:       "guid-1",
		Current:    true,
		Extras:     map[string]string{},
		GatheredAt: time.Now().UTC(),
	}))

	tracker := New(store)
	cursor, err := tracker.ResumeCursor(ctx, "esa")
	require.NoError(t, err)
	require.Equal(t, harvest.Wildcard, cursor)
}

func TestResumeCursorIgnoresOtherSources(t *testing.T) {
	t.Parallel()

	store := memory.NewObjectStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &harvest.Object{
		ID:       "obj-1",
		SourceID: "other",
		GUID:     "guid-1",
		Current:  true,
		Extras: map[string]string{
			harvest.ExtraRestartDate: "2024-01-10T00:00:00Z",
		},
		GatheredAt: time.Now().UTC(),
	}))

	tracker := New(store)
	cursor, err := tracker.ResumeCursor(ctx, "esa")
	require.NoError(t, err)
	require.Equal(t, harvest.Wildcard, cursor)
}
