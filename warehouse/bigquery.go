package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/5amCurfew/xtkt-target/models"
	log "github.com/sirupsen/logrus"
)

// BigQuery loads batches straight from their gs:// URI. The client's project is bucket_name.
type BigQuery struct {
	client *bigquery.Client
}

func NewBigQuery(ctx context.Context, config models.Config) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, config.BucketName)
	if err != nil {
		return nil, fmt.Errorf("error creating bigquery client: %w", err)
	}
	return &BigQuery{client: client}, nil
}

type bigQueryJob struct {
	job *bigquery.Job
}

func (j *bigQueryJob) ID() string {
	return j.job.ID()
}

func (j *bigQueryJob) Wait(ctx context.Context) error {
	status, err := j.job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("error waiting for job %s: %w", j.job.ID(), err)
	}
	return status.Err()
}

func (b *BigQuery) Load(ctx context.Context, uri string, table TableID, opts LoadOptions) (Job, error) {
	ref := bigquery.NewGCSReference(uri)
	ref.SourceFormat = bigquery.CSV
	ref.SkipLeadingRows = opts.SkipLeadingRows
	ref.MaxBadRecords = opts.MaxBadRecords
	ref.AutoDetect = opts.Autodetect
	ref.FieldDelimiter = opts.FieldDelimiter
	ref.Quote = opts.Quote

	loader := b.client.DatasetInProject(table.Project, table.Dataset).Table(table.Table).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting load into %s: %w", table, err)
	}
	log.WithFields(log.Fields{"job_id": job.ID(), "table": table.String()}).Info("load job submitted")
	return &bigQueryJob{job: job}, nil
}

func (b *BigQuery) Query(ctx context.Context, sql string) (Result, error) {
	job, err := b.client.Query(sql).Run(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("error starting query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return Result{JobID: job.ID()}, fmt.Errorf("error waiting for query job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return Result{JobID: job.ID()}, fmt.Errorf("query job %s failed: %w", job.ID(), err)
	}

	result := Result{JobID: job.ID()}
	if status.Statistics != nil {
		if details, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			result.RowsAffected = details.NumDMLAffectedRows
		}
	}
	return result, nil
}

func (b *BigQuery) TableRef(dataset string, table string) string {
	return fmt.Sprintf("`%s`.%s", dataset, table)
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}
