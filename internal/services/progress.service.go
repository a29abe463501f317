package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/models"
	"raisloader/internal/repositories"
)

const failedBucket = "FAILED"

// ProgressReport is the aggregate view printed by the status command.
type ProgressReport struct {
	SessionID     string
	CurrentPeriod string
	LastUpdate    *time.Time
	TotalFiles    int
	// ByStage counts success stages by name; every failure stage counts under FAILED.
	ByStage map[string]int
}

// FailedFile is a tracked file whose last attempt failed.
type FailedFile struct {
	Key       models.FileKey
	Stage     models.Stage
	Message   string
	Timestamp time.Time
}

// ProgressStore is the single source of truth for per-file skip decisions. Every
// mutation is persisted immediately.
type ProgressStore struct {
	repo  repositories.ProgressRepository
	state *models.ProgressState
	now   func() time.Time
	mu    sync.Mutex
	log   logger.Logger
}

func NewProgressStore(repo repositories.ProgressRepository) *ProgressStore {
	return &ProgressStore{
		repo:  repo,
		state: models.NewProgressState(time.Now()),
		now:   time.Now,
		log:   logger.New("progressStore"),
	}
}

func (s *ProgressStore) Location() string {
	return s.repo.Location()
}

// Load replaces the in-memory state with the persisted one. A missing or corrupt
// record starts a fresh session.
func (s *ProgressStore) Load(ctx context.Context) error {
	log := s.log.TraceFromContext(ctx).Function("Load")

	state, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		if state.Files == nil {
			state.Files = make(map[models.FileKey]*models.TrackedFile)
		}
		log.Info("Resuming session",
			"sessionID", state.SessionID,
			"period", state.CurrentPeriod,
			"files", len(state.Files),
			"location", s.repo.Location())
	case errors.Is(err, repositories.ErrProgressNotFound):
		state = models.NewProgressState(s.now())
		log.Info("No saved progress, starting new session", "sessionID", state.SessionID)
	case errors.Is(err, repositories.ErrProgressCorrupt):
		state = models.NewProgressState(s.now())
		log.Warn("Saved progress is corrupt, starting new session",
			"sessionID", state.SessionID,
			"error", err)
	default:
		return log.Err("failed to load progress", err, "location", s.repo.Location())
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Save persists the current state. A failed write is logged and swallowed so the
// run can continue; the next mutation retries it.
func (s *ProgressStore) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

func (s *ProgressStore) saveLocked(ctx context.Context) {
	now := s.now()
	s.state.LastUpdate = &now

	if err := s.repo.Save(ctx, s.state); err != nil {
		s.log.TraceFromContext(ctx).Function("Save").
			Warn("Failed to persist progress", "location", s.repo.Location(), "error", err)
	}
}

// GetStage returns the recorded stage of key, or NOT_STARTED.
func (s *ProgressStore) GetStage(key models.FileKey) models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file, ok := s.state.Files[key]; ok {
		return file.Stage
	}
	return models.StageNotStarted
}

// Get returns a copy of the record for key.
func (s *ProgressStore) Get(key models.FileKey) (models.TrackedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.state.Files[key]
	if !ok {
		return models.TrackedFile{}, false
	}
	return *file, true
}

// SetStage records the outcome of a stage attempt and saves. Moving a file back to
// an earlier stage is allowed but reported.
func (s *ProgressStore) SetStage(
	ctx context.Context,
	key models.FileKey,
	stage models.Stage,
	success bool,
	info models.StageInfo,
) {
	log := s.log.TraceFromContext(ctx).Function("SetStage")

	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, ok := s.state.Files[key]; ok && !stage.IsFailure() && stage.Rank() < previous.Stage.Rank() {
		log.Warn("Stage regressed",
			"file", key.Filename,
			"period", key.Period,
			"from", previous.Stage,
			"to", stage)
	}

	s.state.Files[key] = &models.TrackedFile{
		Stage:     stage,
		Success:   success,
		Timestamp: s.now(),
		Info:      info,
	}

	if success {
		log.Debug("Stage recorded", "file", key.Filename, "period", key.Period, "stage", stage)
	} else {
		log.Warn("Stage failed", "file", key.Filename, "period", key.Period, "stage", stage,
			"error", truncate(s.state.Files[key].ErrorMessage(), 200))
	}

	s.saveLocked(ctx)
}

func (s *ProgressStore) SetCurrentPeriod(ctx context.Context, period string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.CurrentPeriod = period
	s.saveLocked(ctx)
}

func (s *ProgressStore) CurrentPeriod() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentPeriod
}

// Reset deletes the persisted state and starts a new session.
func (s *ProgressStore) Reset(ctx context.Context) error {
	log := s.log.TraceFromContext(ctx).Function("Reset")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Reset(ctx); err != nil {
		return log.Err("failed to reset progress", err, "location", s.repo.Location())
	}

	s.state = models.NewProgressState(s.now())
	log.Info("Progress reset", "sessionID", s.state.SessionID)
	return nil
}

// Snapshot returns a deep copy of the whole state.
func (s *ProgressStore) Snapshot() *models.ProgressState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *ProgressStore) Report() ProgressReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := ProgressReport{
		SessionID:     s.state.SessionID,
		CurrentPeriod: s.state.CurrentPeriod,
		TotalFiles:    len(s.state.Files),
		ByStage:       make(map[string]int),
	}
	if s.state.LastUpdate != nil {
		lastUpdate := *s.state.LastUpdate
		report.LastUpdate = &lastUpdate
	}

	for _, file := range s.state.Files {
		report.ByStage[stageBucket(file.Stage)]++
	}
	return report
}

// PeriodCounts counts the files of one period by stage bucket.
func (s *ProgressStore) PeriodCounts(period string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for key, file := range s.state.Files {
		if key.Period == period {
			counts[stageBucket(file.Stage)]++
		}
	}
	return counts
}

// PeriodFiles returns the keys tracked for period.
func (s *ProgressStore) PeriodFiles(period string) map[models.FileKey]models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make(map[models.FileKey]models.Stage)
	for key, file := range s.state.Files {
		if key.Period == period {
			files[key] = file.Stage
		}
	}
	return files
}

// Failures lists failed files, most recent first. An empty period matches all.
func (s *ProgressStore) Failures(period string) []FailedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failures []FailedFile
	for key, file := range s.state.Files {
		if period != "" && key.Period != period {
			continue
		}
		if !file.Stage.IsFailure() {
			continue
		}
		failures = append(failures, FailedFile{
			Key:       key,
			Stage:     file.Stage,
			Message:   file.ErrorMessage(),
			Timestamp: file.Timestamp,
		})
	}

	sort.Slice(failures, func(i, j int) bool {
		if !failures[i].Timestamp.Equal(failures[j].Timestamp) {
			return failures[i].Timestamp.After(failures[j].Timestamp)
		}
		return failures[i].Key.String() < failures[j].Key.String()
	})
	return failures
}

func stageBucket(stage models.Stage) string {
	if stage.IsFailure() {
		return failedBucket
	}
	return string(stage)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
