package services

import (
	"bufio"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	logger "github.com/Bparsons0904/goLogger"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLSTATE classes worth retrying: connection exceptions, insufficient resources,
// operator intervention and serialization failures.
var transientPQClasses = map[pq.ErrorClass]bool{
	"08": true,
	"53": true,
	"57": true,
	"40": true,
}

// PostgresDestination loads through COPY FROM STDIN. Columns are created as TEXT
// from the file header.
type PostgresDestination struct {
	db     *sql.DB
	schema string
	log    logger.Logger
}

func NewPostgresDestination(dsn, schema string) (*PostgresDestination, error) {
	log := logger.New("postgresDestination").Function("NewPostgresDestination")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, log.Err("failed to open PostgreSQL destination", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if schema == "" {
		schema = "public"
	}
	return &PostgresDestination{
		db:     db,
		schema: schema,
		log:    logger.New("postgresDestination"),
	}, nil
}

func (d *PostgresDestination) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.log.TraceFromContext(ctx).Function("Ping").
			Err("PostgreSQL destination not reachable", classifyPQ(err))
	}
	return nil
}

func (d *PostgresDestination) tableRef(ref TableRef) (string, string) {
	if ref.Dataset == "" {
		return d.schema, ref.Table
	}
	return ref.Dataset, ref.Table
}

func (d *PostgresDestination) Load(ctx context.Context, req LoadRequest) (LoadJob, error) {
	log := d.log.TraceFromContext(ctx).Function("Load")
	schema, table := d.tableRef(req.Table)

	file, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, log.Err("failed to open load source", err, "path", req.SourcePath)
	}
	defer file.Close()

	reader := csv.NewReader(skipBOM(bufio.NewReaderSize(file, readBufferSize)))
	reader.Comma = req.FieldDelimiter
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, log.Err("failed to read load header", err, "path", req.SourcePath)
	}
	columns := append([]string(nil), header...)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, log.Err("failed to begin load transaction", classifyPQ(err))
	}
	rollback := func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warn("rollback failed", "error", rbErr)
		}
	}

	for _, statement := range postgresPrepareStatements(schema, table, columns, req.Disposition) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			rollback()
			return nil, log.Err("failed to prepare table", classifyPQ(err), "table", req.Table.String())
		}
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schema, table, columns...))
	if err != nil {
		rollback()
		return nil, log.Err("failed to start COPY", classifyPQ(err), "table", req.Table.String())
	}

	var rows int64
	values := make([]any, len(columns))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = stmt.Close()
			rollback()
			return nil, log.Err("failed to read load source", err, "path", req.SourcePath, "row", rows+1)
		}
		for i := range values {
			values[i] = nil
			if i < len(record) {
				values[i] = record[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = stmt.Close()
			rollback()
			return nil, log.Err("COPY row failed", classifyPQ(err), "table", req.Table.String())
		}
		rows++
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		rollback()
		return nil, log.Err("failed to finish COPY", classifyPQ(err), "table", req.Table.String())
	}
	if err := stmt.Close(); err != nil {
		rollback()
		return nil, log.Err("failed to close COPY", classifyPQ(err), "table", req.Table.String())
	}
	if err := tx.Commit(); err != nil {
		return nil, log.Err("failed to commit load", classifyPQ(err), "table", req.Table.String())
	}

	id := uuid.NewString()
	log.Info("Load complete", "jobID", id, "table", req.Table.String(), "rows", rows, "disposition", req.Disposition)
	return completedJob{id: id}, nil
}

func postgresPrepareStatements(schema, table string, columns []string, disposition WriteDisposition) []string {
	qualified := pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)

	definitions := make([]string, len(columns))
	for i, column := range columns {
		definitions[i] = pq.QuoteIdentifier(column) + " TEXT"
	}

	statements := []string{"CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)}
	if disposition == WriteTruncate {
		statements = append(statements, "DROP TABLE IF EXISTS "+qualified)
	}
	statements = append(statements,
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(definitions, ", ")))
	return statements
}

func (d *PostgresDestination) RowCount(ctx context.Context, ref TableRef) (int64, error) {
	schema, table := d.tableRef(ref)
	query := "SELECT count(*) FROM " + pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)

	var count int64
	if err := d.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, d.log.TraceFromContext(ctx).Function("RowCount").
			Err("failed to count rows", classifyPQ(err), "table", ref.String())
	}
	return count, nil
}

func (d *PostgresDestination) Close() error {
	return d.db.Close()
}

func classifyPQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && transientPQClasses[pqErr.Code.Class()] {
		return MarkTransient(err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return MarkTransient(err)
	}
	return err
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r *bufio.Reader) io.Reader {
	if prefix, err := r.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = r.Discard(len(utf8BOM))
	}
	return r
}
