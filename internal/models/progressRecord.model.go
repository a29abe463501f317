package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProgressSessionRecord is the database form of the run session. The table holds
// a single row.
type ProgressSessionRecord struct {
	ID            int        `gorm:"type:int;primaryKey"          json:"id"`
	SessionID     string     `gorm:"not null"                     json:"session_id"`
	CurrentPeriod string     `gorm:"not null;default:''"          json:"current_period"`
	LastUpdate    *time.Time `                                    json:"last_update,omitempty"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"               json:"updatedAt"`
}

func (ProgressSessionRecord) TableName() string {
	return "progress_sessions"
}

// TrackedFileRecord is the database form of a TrackedFile, keyed by (period, filename).
type TrackedFileRecord struct {
	Period    string         `gorm:"primaryKey"                         json:"period"`
	Filename  string         `gorm:"primaryKey"                         json:"filename"`
	Stage     Stage          `gorm:"not null;default:'NOT_STARTED'"     json:"stage"`
	Success   bool           `gorm:"not null;default:false"             json:"success"`
	Timestamp time.Time      `gorm:"not null"                           json:"timestamp"`
	Info      datatypes.JSON `gorm:"type:jsonb"                         json:"info"`
}

func (TrackedFileRecord) TableName() string {
	return "tracked_files"
}

func (r TrackedFileRecord) Key() FileKey {
	return NewFileKey(r.Period, r.Filename)
}

func (r TrackedFileRecord) ToTrackedFile() *TrackedFile {
	return &TrackedFile{
		Stage:     r.Stage,
		Success:   r.Success,
		Timestamp: r.Timestamp,
		Info:      DecodeStageInfo(r.Stage, []byte(r.Info)),
	}
}

func NewTrackedFileRecord(key FileKey, file *TrackedFile) (TrackedFileRecord, error) {
	info, err := EncodeStageInfo(file.Info)
	if err != nil {
		return TrackedFileRecord{}, err
	}
	return TrackedFileRecord{
		Period:    key.Period,
		Filename:  key.Filename,
		Stage:     file.Stage,
		Success:   file.Success,
		Timestamp: file.Timestamp,
		Info:      datatypes.JSON(info),
	}, nil
}
