package services

import (
	"context"

	"raisloader/config"
)

type Service struct {
	Progress      *ProgressStore
	Retry         *RetryExecutor
	Listing       RemoteSource
	Dictionaries  *DictionaryService
	Destination   Destination
	FileCleanup   *FileCleanupService
	Orchestration *OrchestrationService
	Scheduler     *SchedulerService
}

// New builds the pipeline services around an already loaded progress store.
func New(ctx context.Context, config config.Config, progress *ProgressStore) (Service, error) {
	destination, err := NewDestination(ctx, config)
	if err != nil {
		return Service{}, err
	}

	retry := NewRetryExecutorFromConfig(config)
	listing := NewFTPListingService(config)
	dictionaries := NewDictionaryService(config.DictionaryPath, config.NotInformed, OpenExcelWorkbook)
	fileCleanup := NewFileCleanupService(config)

	orchestration := NewOrchestrationService(
		config,
		listing,
		progress,
		retry,
		dictionaries,
		NewSevenZipExtractor(),
		destination,
		fileCleanup,
	)

	return Service{
		Progress:      progress,
		Retry:         retry,
		Listing:       listing,
		Dictionaries:  dictionaries,
		Destination:   destination,
		FileCleanup:   fileCleanup,
		Orchestration: orchestration,
		Scheduler:     NewSchedulerService(config.WatchAt),
	}, nil
}

func (s Service) Close() error {
	if s.Destination == nil {
		return nil
	}
	return s.Destination.Close()
}
