package services

import (
	"context"
	"errors"
	"os"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/config"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// job status reasons BigQuery documents as retryable
var retryableBigQueryReasons = map[string]bool{
	"backendError":      true,
	"internalError":     true,
	"rateLimitExceeded": true,
	"timeout":           true,
}

type BigQueryDestination struct {
	client  *bigquery.Client
	dataset string
	log     logger.Logger
}

func NewBigQueryDestination(ctx context.Context, cfg config.Config) (*BigQueryDestination, error) {
	log := logger.New("bigQueryDestination").Function("NewBigQueryDestination")

	var opts []option.ClientOption
	if cfg.GCPCredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsPath))
	}

	client, err := bigquery.NewClient(ctx, cfg.GCPProjectID, opts...)
	if err != nil {
		return nil, log.Err("failed to create BigQuery client", err, "project", cfg.GCPProjectID)
	}
	if cfg.BigQueryLocation != "" {
		client.Location = cfg.BigQueryLocation
	}

	log.Info("BigQuery client ready", "project", cfg.GCPProjectID, "dataset", cfg.BigQueryDatasetID)
	return &BigQueryDestination{
		client:  client,
		dataset: cfg.BigQueryDatasetID,
		log:     logger.New("bigQueryDestination"),
	}, nil
}

func (d *BigQueryDestination) Ping(ctx context.Context) error {
	log := d.log.TraceFromContext(ctx).Function("Ping")

	if _, err := d.client.Dataset(d.dataset).Metadata(ctx); err != nil {
		return log.Err("dataset not reachable", classifyBigQuery(err), "dataset", d.dataset)
	}
	return nil
}

func (d *BigQueryDestination) table(ref TableRef) *bigquery.Table {
	dataset := ref.Dataset
	if dataset == "" {
		dataset = d.dataset
	}
	return d.client.Dataset(dataset).Table(ref.Table)
}

func (d *BigQueryDestination) Load(ctx context.Context, req LoadRequest) (LoadJob, error) {
	log := d.log.TraceFromContext(ctx).Function("Load")

	file, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, log.Err("failed to open load source", err, "path", req.SourcePath)
	}
	defer file.Close()

	source := bigquery.NewReaderSource(file)
	source.SourceFormat = bigquery.CSV
	source.Encoding = bigquery.UTF_8
	source.FieldDelimiter = string(req.FieldDelimiter)
	source.AutoDetect = true
	source.SkipLeadingRows = 1

	loader := d.table(req.Table).LoaderFrom(source)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	if req.Disposition == WriteTruncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, log.Err("failed to submit load job", classifyBigQuery(err),
			"table", req.Table.String(),
			"path", req.SourcePath)
	}

	log.Info("Load job submitted", "jobID", job.ID(), "table", req.Table.String(), "disposition", req.Disposition)
	return &bigQueryJob{job: job}, nil
}

func (d *BigQueryDestination) RowCount(ctx context.Context, ref TableRef) (int64, error) {
	log := d.log.TraceFromContext(ctx).Function("RowCount")

	metadata, err := d.table(ref).Metadata(ctx)
	if err != nil {
		return 0, log.Err("failed to read table metadata", classifyBigQuery(err), "table", ref.String())
	}
	return int64(metadata.NumRows), nil
}

func (d *BigQueryDestination) Close() error {
	return d.client.Close()
}

type bigQueryJob struct {
	job *bigquery.Job
}

func (j *bigQueryJob) ID() string {
	return j.job.ID()
}

func (j *bigQueryJob) Result(ctx context.Context) error {
	status, err := j.job.Wait(ctx)
	if err != nil {
		return classifyBigQuery(err)
	}
	if err := status.Err(); err != nil {
		return classifyBigQuery(err)
	}
	return nil
}

// classifyBigQuery marks job failures with a retryable reason as transient.
// googleapi errors are left for Classify.
func classifyBigQuery(err error) error {
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) && retryableBigQueryReasons[bqErr.Reason] {
		return MarkTransient(err)
	}

	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		for _, inner := range multi {
			if errors.As(inner, &bqErr) && retryableBigQueryReasons[bqErr.Reason] {
				return MarkTransient(err)
			}
		}
	}
	return err
}
