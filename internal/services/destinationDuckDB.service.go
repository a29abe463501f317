package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"

	logger "github.com/Bparsons0904/goLogger"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

// DuckDBDestination loads into a local DuckDB file. Loads are synchronous.
// Schema-qualified names carry the catalog too, since DuckDB names the catalog
// after the database file and a schema of the same name would be ambiguous.
type DuckDBDestination struct {
	db      *sql.DB
	path    string
	catalog string
	log     logger.Logger
}

func NewDuckDBDestination(path string) (*DuckDBDestination, error) {
	log := logger.New("duckDBDestination").Function("NewDuckDBDestination")

	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return nil, log.Err("failed to create database directory", err, "path", path)
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='2GB'",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, log.Err("failed to create DuckDB connector", err, "path", path)
	}

	db := sql.OpenDB(connector)

	var catalog string
	if err := db.QueryRowContext(context.Background(), "SELECT current_database()").Scan(&catalog); err != nil {
		_ = db.Close()
		return nil, log.Err("failed to resolve DuckDB catalog", err, "path", path)
	}

	log.Info("DuckDB destination opened", "path", path, "catalog", catalog)
	return &DuckDBDestination{
		db:      db,
		path:    path,
		catalog: catalog,
		log:     logger.New("duckDBDestination"),
	}, nil
}

func (d *DuckDBDestination) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.log.TraceFromContext(ctx).Function("Ping").Err("DuckDB not reachable", err, "path", d.path)
	}
	return nil
}

func (d *DuckDBDestination) schemaName(ref TableRef) string {
	return quoteIdent(d.catalog) + "." + quoteIdent(ref.Dataset)
}

func (d *DuckDBDestination) tableName(ref TableRef) string {
	if ref.Dataset == "" {
		return quoteIdent(ref.Table)
	}
	return d.schemaName(ref) + "." + quoteIdent(ref.Table)
}

func duckReadCSV(req LoadRequest) string {
	return fmt.Sprintf(
		"read_csv(%s, delim=%s, header=true, quote='\"', auto_detect=true)",
		quoteLiteral(req.SourcePath),
		quoteLiteral(string(req.FieldDelimiter)),
	)
}

func (d *DuckDBDestination) Load(ctx context.Context, req LoadRequest) (LoadJob, error) {
	log := d.log.TraceFromContext(ctx).Function("Load")

	table := d.tableName(req.Table)
	source := duckReadCSV(req)

	var statements []string
	if req.Table.Dataset != "" {
		statements = append(statements, "CREATE SCHEMA IF NOT EXISTS "+d.schemaName(req.Table))
	}
	if req.Disposition == WriteTruncate {
		statements = append(statements,
			fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", table, source))
	} else {
		statements = append(statements,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s LIMIT 0", table, source),
			fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM %s", table, source))
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, log.Err("failed to begin load transaction", err)
	}
	for _, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			_ = tx.Rollback()
			return nil, log.Err("load statement failed", err, "table", req.Table.String(), "path", req.SourcePath)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, log.Err("failed to commit load", err, "table", req.Table.String())
	}

	id := uuid.NewString()
	log.Info("Load complete", "jobID", id, "table", req.Table.String(), "disposition", req.Disposition)
	return completedJob{id: id}, nil
}

func (d *DuckDBDestination) RowCount(ctx context.Context, ref TableRef) (int64, error) {
	var count int64
	query := "SELECT count(*) FROM " + d.tableName(ref)
	if err := d.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, d.log.TraceFromContext(ctx).Function("RowCount").Err("failed to count rows", err, "table", ref.String())
	}
	return count, nil
}

func (d *DuckDBDestination) Close() error {
	return d.db.Close()
}
