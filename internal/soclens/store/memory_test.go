package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

func TestMemoryStore_JobLifecycle(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	job := model.IngestJob{
		ID:        "job-1",
		UploadID:  "up-1",
		Status:    model.JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateJob(ctx, job))

	_, err := st.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, got.Status)

	active, ok, err := st.ActiveJob(ctx, "up-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-1", active.ID)

	require.NoError(t, st.UpdateJob(ctx, "job-1", func(j *model.IngestJob) error {
		j.Status = model.JobDone
		j.InsertedEvents = 10
		j.BadLines = 2
		return nil
	}))

	_, ok, err = st.ActiveJob(ctx, "up-1")
	require.NoError(t, err)
	assert.False(t, ok, "done job must not count as active")

	got, err = st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.InsertedEvents)
	assert.Equal(t, 2, got.BadLines)
}

func TestMemoryStore_LatestJob(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := st.LatestJob(ctx, "up-2")
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now().UTC()
	require.NoError(t, st.CreateJob(ctx, model.IngestJob{
		ID: "old", UploadID: "up-2", Status: model.JobDone, CreatedAt: base,
	}))
	require.NoError(t, st.CreateJob(ctx, model.IngestJob{
		ID: "new", UploadID: "up-2", Status: model.JobFailed, CreatedAt: base.Add(time.Second),
	}))

	latest, ok, err := st.LatestJob(ctx, "up-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", latest.ID)
}

func TestMemoryStore_RollupsReplacedWholesale(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	key := func(minute int) model.BucketKey {
		return model.BucketKey{
			UploadID:       "up-3",
			Bucket:         time.Date(2025, 6, 1, 10, minute, 0, 0, time.UTC),
			UserEmail:      "a@b.com",
			ClientIP:       "10.0.0.1",
			DestHost:       model.UnsetDim,
			Action:         "Allowed",
			ThreatCategory: model.UnsetDim,
		}
	}

	require.NoError(t, st.ReplaceRollups(ctx, "up-3", []model.RollupBucket{
		{Key: key(0), Total: 5},
		{Key: key(1), Total: 7},
	}))
	require.NoError(t, st.ReplaceRollups(ctx, "up-3", []model.RollupBucket{
		{Key: key(1), Total: 7},
	}))

	buckets, err := st.ListRollups(ctx, "up-3")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 7, buckets[0].Total)
}

func TestMemoryStore_FindingsAppendOnly(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.AppendFindings(ctx, []model.Finding{
		{ID: "f1", UploadID: "up-4", PatternName: "X"},
	}))
	require.NoError(t, st.AppendFindings(ctx, []model.Finding{
		{ID: "f2", UploadID: "up-4", PatternName: "Y"},
	}))

	findings, err := st.ListFindings(ctx, "up-4")
	require.NoError(t, err)
	assert.Len(t, findings, 2)

	// returned slice is a copy; mutating it must not touch the store
	findings[0].PatternName = "mutated"
	again, err := st.ListFindings(ctx, "up-4")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].PatternName)
}

func TestMemoryStore_Features(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := st.GetFeatures(ctx, "up-5")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.UpsertFeatures(ctx, model.UploadFeatures{UploadID: "up-5", TotalEvents: 9}))
	require.NoError(t, st.UpsertFeatures(ctx, model.UploadFeatures{UploadID: "up-5", TotalEvents: 12}))

	f, ok, err := st.GetFeatures(ctx, "up-5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, f.TotalEvents)
}

func TestMemoryStore_CreateJobIfNoneActive(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := model.IngestJob{ID: "job-a", UploadID: "up-guard", Status: model.JobRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateJobIfNoneActive(ctx, first))

	second := model.IngestJob{ID: "job-b", UploadID: "up-guard", Status: model.JobQueued, CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, st.CreateJobIfNoneActive(ctx, second), ErrActiveJob)

	// terminal jobs release the guard
	require.NoError(t, st.UpdateJob(ctx, "job-a", func(j *model.IngestJob) error {
		j.Status = model.JobDone
		return nil
	}))
	assert.NoError(t, st.CreateJobIfNoneActive(ctx, second))

	// other uploads are unaffected by the guard
	other := model.IngestJob{ID: "job-c", UploadID: "up-other", Status: model.JobQueued, CreatedAt: time.Now().UTC()}
	assert.NoError(t, st.CreateJobIfNoneActive(ctx, other))
}
