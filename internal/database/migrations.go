package database

import (
	logger "github.com/Bparsons0904/goLogger"
	migrate "github.com/rubenv/sql-migrate"
)

const migrationTable = "progress_migrations"

// progressMigrations creates the tables behind the database progress repository.
var progressMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_progress_tables",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS progress_sessions (
					id             INTEGER PRIMARY KEY,
					session_id     TEXT NOT NULL,
					current_period TEXT NOT NULL DEFAULT '',
					last_update    TIMESTAMPTZ,
					updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE TABLE IF NOT EXISTS tracked_files (
					period    TEXT NOT NULL,
					filename  TEXT NOT NULL,
					stage     TEXT NOT NULL DEFAULT 'NOT_STARTED',
					success   BOOLEAN NOT NULL DEFAULT FALSE,
					timestamp TIMESTAMPTZ NOT NULL,
					info      JSONB,
					PRIMARY KEY (period, filename)
				)`,
			},
			Down: []string{
				"DROP TABLE IF EXISTS tracked_files",
				"DROP TABLE IF EXISTS progress_sessions",
			},
		},
		{
			Id: "0002_tracked_files_stage_index",
			Up: []string{
				"CREATE INDEX IF NOT EXISTS idx_tracked_files_period_stage ON tracked_files(period, stage)",
			},
			Down: []string{
				"DROP INDEX IF EXISTS idx_tracked_files_period_stage",
			},
		},
	},
}

// Migrate applies pending progress schema migrations.
func (s *DB) Migrate() error {
	log := logger.New("database").Function("Migrate")

	sqlDB, err := s.SQL.DB()
	if err != nil {
		return log.Err("failed to get database from GORM", err)
	}

	migrate.SetTable(migrationTable)
	n, err := migrate.Exec(sqlDB, "postgres", progressMigrations, migrate.Up)
	if err != nil {
		return log.Err("failed to apply progress migrations", err)
	}

	log.Info("Progress schema up to date", "applied", n)
	return nil
}
