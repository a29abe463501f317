package repositories

import (
	"context"
	"errors"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/database"
	"raisloader/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const progressSessionRowID = 1

type progressDatabaseRepository struct {
	db  database.DB
	log logger.Logger
}

// NewProgressDatabaseRepository keeps the progress state in the progress_sessions
// and tracked_files tables.
func NewProgressDatabaseRepository(db database.DB) ProgressRepository {
	return &progressDatabaseRepository{
		db:  db,
		log: logger.New("progressDatabaseRepository"),
	}
}

func (r *progressDatabaseRepository) Location() string {
	return "postgres:" + models.ProgressSessionRecord{}.TableName()
}

func (r *progressDatabaseRepository) Load(ctx context.Context) (*models.ProgressState, error) {
	log := r.log.Function("Load")

	var session models.ProgressSessionRecord
	err := r.db.SQLWithContext(ctx).Where("id = ?", progressSessionRowID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, log.Err("failed to load progress session", err)
	}

	var records []models.TrackedFileRecord
	if err := r.db.SQLWithContext(ctx).Order("period, filename").Find(&records).Error; err != nil {
		return nil, log.Err("failed to load tracked files", err)
	}

	state := &models.ProgressState{
		SessionID:     session.SessionID,
		CurrentPeriod: session.CurrentPeriod,
		LastUpdate:    session.LastUpdate,
		Files:         make(map[models.FileKey]*models.TrackedFile, len(records)),
	}
	for _, record := range records {
		state.Files[record.Key()] = record.ToTrackedFile()
	}

	log.Debug("Loaded progress state", "files", len(state.Files))
	return state, nil
}

func (r *progressDatabaseRepository) Save(ctx context.Context, state *models.ProgressState) error {
	log := r.log.Function("Save")

	records := make([]models.TrackedFileRecord, 0, len(state.Files))
	for key, file := range state.Files {
		record, err := models.NewTrackedFileRecord(key, file)
		if err != nil {
			return log.Err("failed to encode tracked file", err, "key", key.String())
		}
		records = append(records, record)
	}

	session := models.ProgressSessionRecord{
		ID:            progressSessionRowID,
		SessionID:     state.SessionID,
		CurrentPeriod: state.CurrentPeriod,
		LastUpdate:    state.LastUpdate,
	}

	err := r.db.SQLWithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&session).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "period"}, {Name: "filename"}},
			DoUpdates: clause.AssignmentColumns([]string{"stage", "success", "timestamp", "info"}),
		}).CreateInBatches(records, 500).Error
	})
	if err != nil {
		return log.Err("failed to save progress state", err, "files", len(records))
	}

	return nil
}

func (r *progressDatabaseRepository) Reset(ctx context.Context) error {
	log := r.log.Function("Reset")

	err := r.db.SQLWithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.TrackedFileRecord{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.ProgressSessionRecord{}).Error
	})
	if err != nil {
		return log.Err("failed to reset progress state", err)
	}

	log.Info("Cleared progress tables", "at", time.Now().UTC())
	return nil
}
