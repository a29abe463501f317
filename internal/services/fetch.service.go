package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
)

// ErrEmptyDownload is returned when a transfer finishes without producing any bytes.
var ErrEmptyDownload = errors.New("downloaded file is missing or empty")

type FetchService struct {
	source   RemoteSource
	progress *ProgressStore
	retry    *RetryExecutor
	log      logger.Logger
}

func NewFetchService(source RemoteSource, progress *ProgressStore, retry *RetryExecutor) *FetchService {
	return &FetchService{
		source:   source,
		progress: progress,
		retry:    retry,
		log:      logger.New("fetchService"),
	}
}

// Fetch downloads the archive of key into destPath. Failures are recorded as
// DOWNLOAD_FAILED and reported through the return value. A cancelled run
// records nothing.
func (s *FetchService) Fetch(ctx context.Context, key models.FileKey, destPath string) bool {
	log := s.log.TraceFromContext(ctx).Function("Fetch")

	if s.progress.GetStage(key).Reached(models.StageDownloaded) && fileExists(destPath) {
		log.Info("Archive already downloaded, skipping", "file", key.Filename, "path", destPath)
		return true
	}

	if err := ensureDirectory(filepath.Dir(destPath)); err != nil {
		s.fail(ctx, key, log.Err("failed to create download directory", err, "path", destPath))
		return false
	}

	log.Info("Downloading archive", "file", key.Filename, "period", key.Period, "path", destPath)

	err := s.retry.Run(ctx, "download "+key.Filename, func(ctx context.Context) error {
		return s.download(ctx, key, destPath)
	})
	if err != nil {
		if Interrupted(ctx, err) {
			log.Info("Download interrupted", "file", key.Filename)
			return false
		}
		s.fail(ctx, key, err)
		return false
	}

	size := fileSize(destPath)
	s.progress.SetStage(ctx, key, models.StageDownloaded, true, models.DownloadInfo{
		SizeMB: models.SizeMB(size),
	})
	log.Info("Archive downloaded", "file", key.Filename, "sizeMB", models.SizeMB(size).String())
	return true
}

func (s *FetchService) download(ctx context.Context, key models.FileKey, destPath string) error {
	file, err := os.Create(destPath)
	if err != nil {
		return err
	}

	_, retrieveErr := s.source.Retrieve(ctx, key.Period, key.Filename, file)
	closeErr := file.Close()
	if retrieveErr != nil {
		return retrieveErr
	}
	if closeErr != nil {
		return closeErr
	}

	if fileSize(destPath) == 0 {
		return MarkTransient(ErrEmptyDownload)
	}
	return nil
}

func (s *FetchService) fail(ctx context.Context, key models.FileKey, err error) {
	s.progress.SetStage(ctx, key, models.StageDownloadFailed, false, models.ErrorInfo{Message: err.Error()})
}
