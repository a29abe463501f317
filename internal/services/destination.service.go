package services

import (
	"context"
	"fmt"
	"strings"

	"raisloader/config"
)

type WriteDisposition string

const (
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
	WriteAppend   WriteDisposition = "WRITE_APPEND"
)

// TableRef names a destination table inside its dataset or schema.
type TableRef struct {
	Dataset string
	Table   string
}

func (t TableRef) String() string {
	if t.Dataset == "" {
		return t.Table
	}
	return t.Dataset + "." + t.Table
}

// LoadRequest describes one CSV file to load. Column names and types are taken
// from the file header.
type LoadRequest struct {
	SourcePath     string
	Table          TableRef
	Disposition    WriteDisposition
	FieldDelimiter rune
}

// LoadJob is a submitted load. Result blocks until the load has finished.
type LoadJob interface {
	ID() string
	Result(ctx context.Context) error
}

// Destination is the analytical store transformed files are loaded into.
type Destination interface {
	Load(ctx context.Context, req LoadRequest) (LoadJob, error)
	RowCount(ctx context.Context, table TableRef) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewDestination opens the destination selected by DESTINATION_DRIVER.
func NewDestination(ctx context.Context, cfg config.Config) (Destination, error) {
	switch cfg.DestinationDriver {
	case config.DestinationBigQuery:
		return NewBigQueryDestination(ctx, cfg)
	case config.DestinationDuckDB:
		return NewDuckDBDestination(cfg.DuckDBPath)
	case config.DestinationPostgres:
		return NewPostgresDestination(cfg.PostgresDSN, cfg.PostgresSchema)
	default:
		return nil, fmt.Errorf("unknown destination driver %q", cfg.DestinationDriver)
	}
}

// DestinationTable resolves the table for period under the configured dataset.
func DestinationTable(cfg config.Config, period string) TableRef {
	ref := TableRef{Table: cfg.TableName(period)}
	switch cfg.DestinationDriver {
	case config.DestinationBigQuery:
		ref.Dataset = cfg.BigQueryDatasetID
	case config.DestinationDuckDB:
		ref.Dataset = cfg.DuckDBSchema
	case config.DestinationPostgres:
		ref.Dataset = cfg.PostgresSchema
	}
	return ref
}

// completedJob is returned by destinations whose loads finish synchronously.
type completedJob struct {
	id  string
	err error
}

func (j completedJob) ID() string                       { return j.id }
func (j completedJob) Result(ctx context.Context) error { return j.err }

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
