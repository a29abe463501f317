package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raisloader/internal/models"
	"raisloader/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type corruptRepository struct {
	memoryProgressRepository
}

func (r *corruptRepository) Load(ctx context.Context) (*models.ProgressState, error) {
	return nil, repositories.ErrProgressCorrupt
}

func TestProgressStore_LoadMissingStartsFreshSession(t *testing.T) {
	store, _ := newTestProgress()
	store.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }

	require.NoError(t, store.Load(context.Background()))

	snapshot := store.Snapshot()
	assert.Equal(t, "20240301_103000", snapshot.SessionID)
	assert.Empty(t, snapshot.Files)
}

func TestProgressStore_LoadCorruptIsNotFatal(t *testing.T) {
	store := NewProgressStore(&corruptRepository{})

	require.NoError(t, store.Load(context.Background()))
	assert.NotEmpty(t, store.Snapshot().SessionID)
}

func TestProgressStore_SetStagePersistsImmediately(t *testing.T) {
	store, repo := newTestProgress()
	ctx := context.Background()
	key := models.NewFileKey("2023", "RAIS_VINC_PUB_NORTE.7z")

	assert.Equal(t, models.StageNotStarted, store.GetStage(key))

	store.SetStage(ctx, key, models.StageDownloaded, true, models.DownloadInfo{SizeMB: models.SizeMB(5 << 20)})

	assert.Equal(t, models.StageDownloaded, store.GetStage(key))
	assert.Equal(t, 1, repo.saves)
	require.NotNil(t, repo.state)
	assert.Equal(t, models.StageDownloaded, repo.state.Files[key].Stage)

	reloaded := NewProgressStore(repo)
	require.NoError(t, reloaded.Load(ctx))
	file, ok := reloaded.Get(key)
	require.True(t, ok)
	assert.True(t, file.Success)
	assert.Equal(t, "5", file.Info.(models.DownloadInfo).SizeMB.String())
}

func TestProgressStore_FailedSaveDoesNotAbort(t *testing.T) {
	store, repo := newTestProgress()
	repo.err = errors.New("disk full")
	key := models.NewFileKey("2023", "A.7z")

	store.SetStage(context.Background(), key, models.StageDownloaded, true, nil)

	assert.Equal(t, models.StageDownloaded, store.GetStage(key))
}

func TestProgressStore_ReportAggregatesFailures(t *testing.T) {
	store, _ := newTestProgress()
	ctx := context.Background()

	store.SetCurrentPeriod(ctx, "2023")
	store.SetStage(ctx, models.NewFileKey("2023", "A.7z"), models.StageUploaded, true, nil)
	store.SetStage(ctx, models.NewFileKey("2023", "B.7z"), models.StageDownloadFailed, false,
		models.ErrorInfo{Message: "timeout"})
	store.SetStage(ctx, models.NewFileKey("2023", "C.7z"), models.StageProcessingFailed, false,
		models.ErrorInfo{Message: "bad header"})
	store.SetStage(ctx, models.NewFileKey("2022", "A.7z"), models.StageProcessed, true, nil)

	report := store.Report()
	assert.Equal(t, "2023", report.CurrentPeriod)
	assert.Equal(t, 4, report.TotalFiles)
	assert.Equal(t, 1, report.ByStage["UPLOADED"])
	assert.Equal(t, 1, report.ByStage["PROCESSED"])
	assert.Equal(t, 2, report.ByStage["FAILED"])
	require.NotNil(t, report.LastUpdate)

	failures := store.Failures("2023")
	require.Len(t, failures, 2)
	for _, failure := range failures {
		assert.True(t, failure.Stage.IsFailure())
		assert.NotEmpty(t, failure.Message)
	}

	assert.Empty(t, store.Failures("2022"))
	assert.Equal(t, map[string]int{"PROCESSED": 1}, store.PeriodCounts("2022"))
}

func TestProgressStore_Reset(t *testing.T) {
	store, repo := newTestProgress()
	ctx := context.Background()
	store.SetStage(ctx, models.NewFileKey("2023", "A.7z"), models.StageUploaded, true, nil)
	before := store.Snapshot().SessionID

	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, store.Reset(ctx))

	assert.Equal(t, 1, repo.resets)
	assert.Empty(t, store.Snapshot().Files)
	assert.NotEqual(t, before, store.Snapshot().SessionID)
	assert.Equal(t, models.StageNotStarted, store.GetStage(models.NewFileKey("2023", "A.7z")))
}

func TestProgressStore_SnapshotIsACopy(t *testing.T) {
	store, _ := newTestProgress()
	key := models.NewFileKey("2023", "A.7z")
	store.SetStage(context.Background(), key, models.StageExtracted, true, nil)

	snapshot := store.Snapshot()
	snapshot.Files[key].Stage = models.StageUploaded

	assert.Equal(t, models.StageExtracted, store.GetStage(key))
}
