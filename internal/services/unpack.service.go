package services

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
)

// ErrExtractedFileMissing is returned when an archive unpacked without producing
// the expected text file.
var ErrExtractedFileMissing = errors.New("expected extracted file not found")

type UnpackService struct {
	extractor Extractor
	progress  *ProgressStore
	log       logger.Logger
}

func NewUnpackService(extractor Extractor, progress *ProgressStore) *UnpackService {
	return &UnpackService{
		extractor: extractor,
		progress:  progress,
		log:       logger.New("unpackService"),
	}
}

// Unpack extracts archivePath into destDir and returns the path of the text file
// it holds. Extraction is never retried.
func (s *UnpackService) Unpack(
	ctx context.Context,
	key models.FileKey,
	archivePath, destDir string,
) (string, bool) {
	log := s.log.TraceFromContext(ctx).Function("Unpack")

	expected := TextPath(destDir, key.Filename)

	if s.progress.GetStage(key).Reached(models.StageExtracted) && fileExists(expected) {
		log.Info("Archive already extracted, skipping", "file", key.Filename, "path", expected)
		return expected, true
	}

	log.Info("Extracting archive", "file", key.Filename, "archive", archivePath)

	if _, err := s.extractor.Extract(ctx, archivePath, destDir); err != nil {
		if Interrupted(ctx, err) {
			log.Info("Extraction interrupted", "file", key.Filename)
			return "", false
		}
		s.fail(ctx, key, err)
		return "", false
	}

	if !fileExists(expected) {
		err := fmt.Errorf("%w: %s", ErrExtractedFileMissing, expected)
		s.fail(ctx, key, log.Err("extraction produced no text file", err, "file", key.Filename))
		return "", false
	}

	size := fileSize(expected)
	s.progress.SetStage(ctx, key, models.StageExtracted, true, models.ExtractInfo{
		SizeMB: models.SizeMB(size),
	})
	log.Info("Archive extracted", "file", key.Filename, "sizeMB", models.SizeMB(size).String())
	return expected, true
}

func (s *UnpackService) fail(ctx context.Context, key models.FileKey, err error) {
	s.progress.SetStage(ctx, key, models.StageExtractionFailed, false, models.ErrorInfo{Message: err.Error()})
}
