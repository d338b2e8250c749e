package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/SharingMan/CNinfo2Notebookllm/internal/common"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/interfaces"
	"github.com/SharingMan/CNinfo2Notebookllm/internal/models"
)

func openTestStorage(t *testing.T) interfaces.RunStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "runs")})
	require.NoError(t, err)
	storage := NewRunStorage(db, logger)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestRunStorage_RoundTrip(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()

	started := time.Date(2024, 6, 30, 9, 0, 0, 0, time.UTC)
	run := &models.RunRecord{
		ID:          "run_1",
		Query:       "茅台",
		StockCode:   "600519",
		StockName:   "贵州茅台",
		Market:      models.MarketSSE,
		Mode:        models.ModeArchive,
		Status:      models.RunStatusPartial,
		Selected:    10,
		Downloaded:  8,
		Failed:      2,
		ArchivePath: "/tmp/out/600519_财务资料_20240630.zip",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
	}
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, run.StockName, got.StockName)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, 8, got.Downloaded)
	assert.Equal(t, run.ArchivePath, got.ArchivePath)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))

	run.Status = models.RunStatusComplete
	require.NoError(t, storage.SaveRun(ctx, run))
	got, err = storage.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, got.Status)
}

func TestRunStorage_GetMissing(t *testing.T) {
	storage := openTestStorage(t)

	_, err := storage.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, models.ErrRunNotFound))
}

func TestRunStorage_SaveRequiresID(t *testing.T) {
	storage := openTestStorage(t)
	assert.Error(t, storage.SaveRun(context.Background(), &models.RunRecord{}))
}

func TestRunStorage_ListMostRecentFirst(t *testing.T) {
	storage := openTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	statuses := []string{models.RunStatusComplete, models.RunStatusFailed, models.RunStatusComplete, models.RunStatusPartial}
	for i, status := range statuses {
		require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{
			ID:        "run_" + string(rune('a'+i)),
			Status:    status,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, "run_d", runs[0].ID)
	assert.Equal(t, "run_a", runs[3].ID)

	runs, err = storage.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_d", runs[0].ID)
	assert.Equal(t, "run_c", runs[1].ID)

	complete, err := storage.ListRunsByStatus(ctx, models.RunStatusComplete, 0)
	require.NoError(t, err)
	require.Len(t, complete, 2)
	assert.Equal(t, "run_c", complete[0].ID)

	require.NoError(t, storage.DeleteRun(ctx, "run_c"))
	require.NoError(t, storage.DeleteRun(ctx, "run_c"))
	runs, err = storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestNewBadgerDB_ResetOnStartup(t *testing.T) {
	logger := arbor.NewLogger()
	path := filepath.Join(t.TempDir(), "runs")
	ctx := context.Background()

	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	storage := NewRunStorage(db, logger)
	require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{ID: "run_old", StartedAt: time.Now()}))
	require.NoError(t, storage.Close())

	db, err = NewBadgerDB(logger, &common.BadgerConfig{Path: path, ResetOnStartup: true})
	require.NoError(t, err)
	storage = NewRunStorage(db, logger)
	defer storage.Close()

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
