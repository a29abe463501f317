package services

import (
	"context"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
)

type LoadService struct {
	destination Destination
	progress    *ProgressStore
	retry       *RetryExecutor
	log         logger.Logger
}

func NewLoadService(destination Destination, progress *ProgressStore, retry *RetryExecutor) *LoadService {
	return &LoadService{
		destination: destination,
		progress:    progress,
		retry:       retry,
		log:         logger.New("loadService"),
	}
}

// Load appends or truncates table with the transformed file at outputPath.
// Failures are recorded as UPLOAD_FAILED and reported through the return value.
func (s *LoadService) Load(
	ctx context.Context,
	key models.FileKey,
	outputPath string,
	table TableRef,
	disposition WriteDisposition,
) bool {
	log := s.log.TraceFromContext(ctx).Function("Load")

	if s.progress.GetStage(key).Reached(models.StageUploaded) {
		log.Info("Already loaded, skipping", "file", key.Filename, "table", table.String())
		return true
	}

	req := LoadRequest{
		SourcePath:     outputPath,
		Table:          table,
		Disposition:    disposition,
		FieldDelimiter: fieldDelimiter,
	}

	log.Info("Loading", "file", key.Filename, "table", table.String(), "disposition", disposition)

	err := s.retry.Run(ctx, "load "+key.Filename, func(ctx context.Context) error {
		job, err := s.destination.Load(ctx, req)
		if err != nil {
			return err
		}
		return job.Result(ctx)
	})
	if err != nil {
		if Interrupted(ctx, err) {
			log.Info("Load interrupted", "file", key.Filename, "table", table.String())
			return false
		}
		s.progress.SetStage(ctx, key, models.StageUploadFailed, false, models.ErrorInfo{Message: err.Error()})
		return false
	}

	rows, err := s.destination.RowCount(ctx, table)
	if err != nil {
		log.Warn("Loaded but could not count table rows", "table", table.String(), "error", err)
	}

	s.progress.SetStage(ctx, key, models.StageUploaded, true, models.UploadInfo{
		TableRows:        rows,
		WriteDisposition: string(disposition),
	})
	log.Info("Load complete", "file", key.Filename, "table", table.String(), "tableRows", rows)
	return true
}
