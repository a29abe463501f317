package models

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the lifecycle position of a tracked file. Values are persisted verbatim.
type Stage string

const (
	StageNotStarted       Stage = "NOT_STARTED"
	StageDownloaded       Stage = "DOWNLOADED"
	StageExtracted        Stage = "EXTRACTED"
	StageProcessed        Stage = "PROCESSED"
	StageUploaded         Stage = "UPLOADED"
	StageDownloadFailed   Stage = "DOWNLOAD_FAILED"
	StageExtractionFailed Stage = "EXTRACTION_FAILED"
	StageProcessingFailed Stage = "PROCESSING_FAILED"
	StageUploadFailed     Stage = "UPLOAD_FAILED"
)

// StageOrder lists the success stages in pipeline order.
var StageOrder = []Stage{
	StageNotStarted,
	StageDownloaded,
	StageExtracted,
	StageProcessed,
	StageUploaded,
}

var stageRank = map[Stage]int{
	StageNotStarted: 0,
	StageDownloaded: 1,
	StageExtracted:  2,
	StageProcessed:  3,
	StageUploaded:   4,

	// a failure ranks as the last success before the attempted stage
	StageDownloadFailed:   0,
	StageExtractionFailed: 1,
	StageProcessingFailed: 2,
	StageUploadFailed:     3,
}

var failureOf = map[Stage]Stage{
	StageDownloaded: StageDownloadFailed,
	StageExtracted:  StageExtractionFailed,
	StageProcessed:  StageProcessingFailed,
	StageUploaded:   StageUploadFailed,
}

// Rank returns the number of completed stages the value represents. Unknown
// stages rank as NOT_STARTED.
func (s Stage) Rank() int {
	return stageRank[s]
}

// Reached reports whether a file at stage s has completed target.
func (s Stage) Reached(target Stage) bool {
	return s.Rank() >= target.Rank() && !target.IsFailure()
}

func (s Stage) IsFailure() bool {
	return strings.HasSuffix(string(s), "_FAILED")
}

func (s Stage) IsKnown() bool {
	_, ok := stageRank[s]
	return ok
}

// FailureOf returns the failure variant recorded when an attempt at stage s fails.
func FailureOf(s Stage) Stage {
	if failed, ok := failureOf[s]; ok {
		return failed
	}
	return s
}

// FileKey identifies a tracked file within a period.
type FileKey struct {
	Period   string
	Filename string
}

func NewFileKey(period, filename string) FileKey {
	return FileKey{Period: period, Filename: filename}
}

// String renders the key in its persisted "period:filename" form.
func (k FileKey) String() string {
	return k.Period + ":" + k.Filename
}

// ParseFileKey splits a persisted key on its first colon.
func ParseFileKey(raw string) (FileKey, error) {
	period, filename, ok := strings.Cut(raw, ":")
	if !ok || period == "" || filename == "" {
		return FileKey{}, fmt.Errorf("malformed file key %q", raw)
	}
	return FileKey{Period: period, Filename: filename}, nil
}

// TrackedFile is the persisted outcome of the most recent stage attempt of a file.
type TrackedFile struct {
	Stage     Stage
	Success   bool
	Timestamp time.Time
	Info      StageInfo
}

// ErrorMessage returns the recorded error text, if the last attempt failed.
func (t *TrackedFile) ErrorMessage() string {
	if t == nil {
		return ""
	}
	if info, ok := t.Info.(ErrorInfo); ok {
		return info.Message
	}
	return ""
}

// ProgressState is the whole persisted record: the run session plus every tracked file.
type ProgressState struct {
	SessionID     string
	CurrentPeriod string
	LastUpdate    *time.Time
	Files         map[FileKey]*TrackedFile
}

// NewProgressState starts a fresh session identified by its creation time.
func NewProgressState(now time.Time) *ProgressState {
	return &ProgressState{
		SessionID: now.Format("20060102_150405"),
		Files:     make(map[FileKey]*TrackedFile),
	}
}

// Clone returns a deep copy suitable for handing to readers.
func (p *ProgressState) Clone() *ProgressState {
	if p == nil {
		return nil
	}

	clone := &ProgressState{
		SessionID:     p.SessionID,
		CurrentPeriod: p.CurrentPeriod,
		Files:         make(map[FileKey]*TrackedFile, len(p.Files)),
	}
	if p.LastUpdate != nil {
		lastUpdate := *p.LastUpdate
		clone.LastUpdate = &lastUpdate
	}
	for key, file := range p.Files {
		copied := *file
		clone.Files[key] = &copied
	}
	return clone
}
