package jobs

import (
	"context"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/services"
)

// staleAfter is how old an abandoned archive or text file must be before removal.
const staleAfter = 24 * time.Hour

type FileCleanupJob struct {
	fileCleanup *services.FileCleanupService
	log         logger.Logger
	schedule    services.Schedule
}

func NewFileCleanupJob(
	fileCleanup *services.FileCleanupService,
	schedule services.Schedule,
) *FileCleanupJob {
	log := logger.New("fileCleanupJob")
	log.Info("Creating new file cleanup job", "schedule", schedule)

	return &FileCleanupJob{
		fileCleanup: fileCleanup,
		log:         log,
		schedule:    schedule,
	}
}

func (j *FileCleanupJob) Name() string {
	return "StaleWorkFileCleanup"
}

func (j *FileCleanupJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	removed, err := j.fileCleanup.RemoveStale(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return log.Err("stale file cleanup failed", err)
	}

	if removed > 0 {
		log.Info("Removed abandoned work files", "count", removed)
	}
	return nil
}

func (j *FileCleanupJob) Schedule() services.Schedule {
	return j.schedule
}
