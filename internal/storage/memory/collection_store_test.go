package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coastalfog/fogwatch/internal/fog"
)

func TestCollectionStore_UpsertLabel_OverwritesOnKeyConflict(t *testing.T) {
	t.Parallel()

	store := NewCollectionStore()
	ctx := context.Background()

	first := fog.LabelRecord{ImageID: "col-1", LabelerName: "plain", LabelerVersion: "1.0", FogScore: 20}
	require.NoError(t, store.UpsertLabel(ctx, first))

	second := first
	second.FogScore = 80
	require.NoError(t, store.UpsertLabel(ctx, second))

	// Same version re-label replaces the row.
	require.Equal(t, 1, store.LabelCount())
	labels, err := store.LabelsFor(ctx, "col-1")
	require.NoError(t, err)
	require.Equal(t, 80, labels[0].FogScore)

	// A version bump is a new row.
	third := first
	third.LabelerVersion = "2.0"
	require.NoError(t, store.UpsertLabel(ctx, third))
	require.Equal(t, 2, store.LabelCount())
}

func TestCollectionStore_InsertCollection_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := NewCollectionStore()
	ctx := context.Background()
	rec := fog.CollectionRecord{ID: "col-1", WebcamID: "cam-1", Timestamp: time.Now()}

	require.NoError(t, store.InsertCollection(ctx, rec))
	require.Error(t, store.InsertCollection(ctx, rec))
}

func TestCollectionStore_LatestCollection_WindowAndOrdering(t *testing.T) {
	t.Parallel()

	store := NewCollectionStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{3 * time.Hour, time.Hour, 30 * time.Minute} {
		require.NoError(t, store.InsertCollection(ctx, fog.CollectionRecord{
			ID:        string(rune('a' + i)),
			WebcamID:  "cam-1",
			Timestamp: base.Add(-age),
		}))
	}

	latest, err := store.LatestCollection(ctx, "cam-1", base.Add(-2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, base.Add(-30*time.Minute), latest.Timestamp)

	// Nothing inside a narrow window.
	latest, err = store.LatestCollection(ctx, "cam-1", base.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Nil(t, latest)

	// Other cameras are invisible.
	latest, err = store.LatestCollection(ctx, "cam-2", base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestCollectionStore_RunLifecycle(t *testing.T) {
	t.Parallel()

	store := NewCollectionStore()
	ctx := context.Background()

	run := fog.RunSummary{ID: "run-1", Status: fog.RunStatusRunning, TotalCameras: 3}
	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run))

	finished := time.Now()
	run.Status = fog.RunStatusSucceeded
	run.Succeeded = 3
	run.FinishedAt = &finished
	require.NoError(t, store.FinalizeRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, fog.RunStatusSucceeded, got.Status)
	require.Equal(t, 3, got.Succeeded)

	require.ErrorIs(t, store.FinalizeRun(ctx, fog.RunSummary{ID: "run-ghost"}), fog.ErrNotFound)
	_, err = store.GetRun(ctx, "run-ghost")
	require.ErrorIs(t, err, fog.ErrNotFound)
}
