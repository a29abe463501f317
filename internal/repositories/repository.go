package repositories

import (
	"raisloader/config"
	"raisloader/internal/database"
)

type Repository struct {
	Progress ProgressRepository
}

// New selects the progress backend named by PROGRESS_BACKEND. db is only used by
// the postgres backend and may be nil otherwise.
func New(cfg config.Config, db *database.DB) Repository {
	if cfg.ProgressBackend == config.ProgressBackendPostgres && db != nil {
		return Repository{Progress: NewProgressDatabaseRepository(*db)}
	}
	return Repository{Progress: NewProgressFileRepository(cfg.ProgressFile)}
}
