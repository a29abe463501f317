package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"
	"raisloader/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNoFiles   = errors.New("no files to process")
	ErrNoPeriods = errors.New("no periods available")
)

type queuedLoad struct {
	key    models.FileKey
	output string
}

// OrchestrationService drives one period through fetch, unpack, transform and load.
type OrchestrationService struct {
	config       config.Config
	source       RemoteSource
	progress     *ProgressStore
	retry        *RetryExecutor
	fetch        *FetchService
	unpack       *UnpackService
	transform    *TransformService
	load         *LoadService
	dictionaries *DictionaryService
	destination  Destination
	cleanup      *FileCleanupService
	now          func() time.Time
	log          logger.Logger
}

func NewOrchestrationService(
	cfg config.Config,
	source RemoteSource,
	progress *ProgressStore,
	retry *RetryExecutor,
	dictionaries *DictionaryService,
	extractor Extractor,
	destination Destination,
	cleanup *FileCleanupService,
) *OrchestrationService {
	return &OrchestrationService{
		config:       cfg,
		source:       source,
		progress:     progress,
		retry:        retry,
		fetch:        NewFetchService(source, progress, retry),
		unpack:       NewUnpackService(extractor, progress),
		transform:    NewTransformService(progress, cfg.ChunkSize),
		load:         NewLoadService(destination, progress, retry),
		dictionaries: dictionaries,
		destination:  destination,
		cleanup:      cleanup,
		now:          time.Now,
		log:          logger.New("orchestrationService"),
	}
}

// LatestPeriod returns the most recent period published by the source.
func (o *OrchestrationService) LatestPeriod(ctx context.Context) (string, error) {
	log := o.log.TraceFromContext(ctx).Function("LatestPeriod")

	periods, err := Do(ctx, o.retry, "list periods", o.source.ListPeriods)
	if err != nil {
		return "", log.Err("failed to list periods", err)
	}
	if len(periods) == 0 {
		return "", log.Err("source published nothing", ErrNoPeriods)
	}
	return periods[0], nil
}

// Resume continues period from the persisted progress.
func (o *OrchestrationService) Resume(ctx context.Context, period string) (RunSummary, error) {
	return o.run(ctx, period)
}

// ResetAndStart discards all persisted progress and processes period from scratch.
func (o *OrchestrationService) ResetAndStart(ctx context.Context, period string) (RunSummary, error) {
	if err := o.progress.Reset(ctx); err != nil {
		return RunSummary{Period: period}, err
	}
	return o.run(ctx, period)
}

func (o *OrchestrationService) run(ctx context.Context, period string) (RunSummary, error) {
	traceID := uuid.NewString()
	ctx = logger.ContextWithTraceID(ctx, traceID)
	log := o.log.TraceFromContext(ctx).Function("run")

	started := o.now()
	summary := RunSummary{
		Period:    period,
		TraceID:   traceID,
		SessionID: o.progress.Snapshot().SessionID,
	}
	finish := func() RunSummary {
		summary.Duration = o.now().Sub(started)
		summary.StageCounts = o.progress.PeriodCounts(period)
		summary.Failures = o.progress.Failures(period)
		summary.Success = summary.Loaded > 0
		summary.Log(log)
		return summary
	}

	log.Info("Starting run", "period", period, "sessionID", summary.SessionID)
	o.progress.SetCurrentPeriod(ctx, period)

	files, err := Do(ctx, o.retry, "list files "+period, func(ctx context.Context) ([]string, error) {
		return o.source.ListFiles(ctx, period)
	})
	if err != nil {
		finish()
		return summary, log.Err("failed to list files", err, "period", period)
	}
	summary.Discovered = len(files)
	if len(files) == 0 {
		finish()
		return summary, log.Err("nothing to do", fmt.Errorf("%w for period %s", ErrNoFiles, period))
	}

	table, err := o.dictionaries.Load(ctx)
	if err != nil {
		finish()
		return summary, log.Err("dictionaries unavailable", err)
	}

	if err := o.destination.Ping(ctx); err != nil {
		finish()
		return summary, log.Err("destination unavailable", err)
	}

	var queue []queuedLoad
	for i, filename := range files {
		if err := ctx.Err(); err != nil {
			finish()
			return summary, err
		}

		key := models.NewFileKey(period, filename)
		log.Info("Processing file", "file", filename, "index", i+1, "total", len(files))

		output, state := o.prepare(ctx, key, table)
		switch state {
		case fileLoaded:
			summary.Loaded++
		case fileQueued:
			queue = append(queue, queuedLoad{key: key, output: output})
		case fileTransformed:
			summary.Transformed++
			queue = append(queue, queuedLoad{key: key, output: output})
		case fileInterrupted:
			finish()
			return summary, log.Err("run interrupted", ctx.Err(), "file", filename)
		default:
			summary.Errors++
		}
	}

	loaded, failed := o.loadQueue(ctx, period, queue)
	summary.Loaded += loaded
	summary.Errors += failed
	if err := ctx.Err(); err != nil {
		finish()
		return summary, log.Err("run interrupted during loads", err)
	}

	if summary.Loaded > 0 {
		ref := DestinationTable(o.config, period)
		rows, err := o.destination.RowCount(ctx, ref)
		if err != nil {
			log.Warn("Could not read final row count", "table", ref.String(), "error", err)
		}
		summary.TableRows = rows
	}

	return finish(), nil
}

type fileState int

const (
	fileFailed fileState = iota
	fileLoaded
	fileQueued
	fileTransformed
	fileInterrupted
)

// prepare brings a file up to a transformed output ready for loading.
func (o *OrchestrationService) prepare(
	ctx context.Context,
	key models.FileKey,
	table *TranslationTable,
) (string, fileState) {
	log := o.log.TraceFromContext(ctx).Function("prepare")

	archive := ArchivePath(o.config.TempDir, key.Filename)
	text := TextPath(o.config.TempDir, key.Filename)
	output := OutputPath(o.config.ProcessedDir, text)

	stage := o.progress.GetStage(key)
	if stage.Reached(models.StageUploaded) {
		log.Info("File already loaded", "file", key.Filename)
		return output, fileLoaded
	}
	if stage.Reached(models.StageProcessed) && fileExists(output) {
		log.Info("Output ready, queued for load", "file", key.Filename)
		return output, fileQueued
	}

	ok := o.fetch.Fetch(ctx, key, archive)
	if ok {
		text, ok = o.unpack.Unpack(ctx, key, archive, o.config.TempDir)
	}
	if ok {
		ok = o.transform.Transform(ctx, key, text, output, table)
	}

	// Working files stay on disk when the run is cancelled so a resume picks up
	// from the last recorded stage.
	if ctx.Err() != nil {
		log.Info("Run cancelled, keeping working files", "file", key.Filename, "stage", o.progress.GetStage(key))
		return "", fileInterrupted
	}

	if err := o.cleanup.Remove(ctx, archive, TextPath(o.config.TempDir, key.Filename)); err != nil {
		log.Warn("Failed to remove working files", "file", key.Filename, "error", err)
	}

	if !ok {
		return "", fileFailed
	}
	return output, fileTransformed
}

// loadQueue loads outputs in path order. The first successful load of a period
// with nothing loaded yet truncates the table; every other load appends.
func (o *OrchestrationService) loadQueue(ctx context.Context, period string, queue []queuedLoad) (int, int) {
	log := o.log.TraceFromContext(ctx).Function("loadQueue")

	sort.Slice(queue, func(i, j int) bool { return queue[i].output < queue[j].output })

	truncatePending := true
	for _, stage := range o.progress.PeriodFiles(period) {
		if stage.Reached(models.StageUploaded) {
			truncatePending = false
			break
		}
	}

	ref := DestinationTable(o.config, period)
	loaded, failed := 0, 0
	for _, item := range queue {
		if err := ctx.Err(); err != nil {
			log.Warn("Run cancelled before all loads", "remaining", len(queue)-loaded-failed)
			break
		}

		disposition := WriteAppend
		if truncatePending {
			disposition = WriteTruncate
		}

		if !o.load.Load(ctx, item.key, item.output, ref, disposition) {
			failed++
			continue
		}

		truncatePending = false
		loaded++
		if err := o.cleanup.Remove(ctx, item.output); err != nil {
			log.Warn("Failed to remove loaded output", "output", item.output, "error", err)
		}
	}

	log.Info("Loads finished", "table", ref.String(), "loaded", loaded, "failed", failed)
	return loaded, failed
}
