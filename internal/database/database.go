package database

import (
	"context"
	"log/slog"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type DB struct {
	SQL *gorm.DB
	log logger.Logger
}

// New opens the PostgreSQL database that backs the progress store and brings its
// schema up to date.
func New(dsn string) (DB, error) {
	log := logger.New("database").Function("New")

	log.Info("Initializing database")
	db := &DB{log: log}

	if err := db.initializeDB(dsn); err != nil {
		return DB{}, log.Err("failed to initialize database", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return DB{}, log.Err("failed to migrate database", err)
	}

	return *db, nil
}

func (s *DB) initializeDB(dsn string) error {
	log := s.log.Function("initializeDB")

	if dsn == "" {
		return log.Error("database dsn is empty")
	}

	// progress writes happen once per stage transition; only errors are worth logging
	gormLogger := gormLogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		gormLogger.Config{
			SlowThreshold:             10 * time.Second,
			LogLevel:                  gormLogger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	gormConfig := &gorm.Config{
		Logger:                 gormLogger,
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	log.Info("Connecting to PostgreSQL")
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return log.Err("failed to open PostgreSQL database with GORM", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return log.Err("failed to get database from GORM", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return log.Err("failed to ping PostgreSQL database through GORM", err)
	}

	log.Info("Successfully connected to PostgreSQL with GORM")
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s.SQL = db
	return nil
}

func (s *DB) Close() error {
	if s.SQL == nil {
		return nil
	}

	sqlDB, err := s.SQL.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return s.log.Err("failed to close database", err)
	}
	return nil
}

func (s *DB) SQLWithContext(ctx context.Context) *gorm.DB {
	return s.SQL.WithContext(ctx)
}
