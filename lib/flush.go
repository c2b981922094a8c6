package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/util"
	"github.com/5amCurfew/xtkt-target/warehouse"
	log "github.com/sirupsen/logrus"
)

const (
	loadSkipLeadingRows = 1
	loadMaxBadRecords   = 30
)

type FlushReason string

const (
	ReasonThreshold FlushReason = "threshold"
	ReasonState     FlushReason = "state"
	ReasonSchedule  FlushReason = "schedule"
	ReasonExit      FlushReason = "exit"
)

// FlushResult describes one uploaded batch. Job is nil unless a load was submitted.
type FlushResult struct {
	Stream    string
	Rows      int
	LocalPath string
	ObjectKey string
	URI       string
	Job       warehouse.Job
}

// flush writes the stream's buffer to CSV, uploads it, optionally submits a load, and clears the buffer.
// An empty buffer is a no-op returning a nil result. The caller holds t.mu.
func (t *Target) flush(ctx context.Context, stream *models.Stream, reason FlushReason) (*FlushResult, error) {
	if stream.Len() == 0 {
		return nil, nil
	}

	now := t.now()
	filename := fmt.Sprintf("%s-%s.csv", stream.Name, util.Timestamp(now))
	localPath := filepath.Join(util.ExpandPath(t.config.DestinationPath), filename)
	logger := t.logger.WithFields(log.Fields{"stream": stream.Name, "reason": reason, "rows": stream.Len()})

	logger.WithFields(log.Fields{"path": localPath}).Info("writing to file")
	if err := writeCSV(localPath, stream.Header, stream.Buffer, t.config.DelimiterRune()); err != nil {
		return nil, fmt.Errorf("error writing batch for stream %s: %w", stream.Name, err)
	}

	folder := t.config.GoogleFolder
	if t.config.Daily.Enabled() {
		folder = util.JoinObjectKey(folder, util.Yesterday(now))
	}
	objectKey := util.JoinObjectKey(folder, filename)

	uri, err := t.store.Upload(ctx, localPath, objectKey)
	if err != nil {
		return nil, fmt.Errorf("error uploading %s to %s: %w", localPath, objectKey, err)
	}
	logger.WithFields(log.Fields{"uri": uri}).Info("uploaded batch")

	if err := os.Remove(localPath); err != nil {
		logger.WithFields(log.Fields{"path": localPath, "Error": err}).Warn("could not remove local batch file")
	}

	result := &FlushResult{
		Stream:    stream.Name,
		Rows:      stream.Len(),
		LocalPath: localPath,
		ObjectKey: objectKey,
		URI:       uri,
	}

	if t.config.UploadToBQ.Enabled() {
		job, err := t.load(ctx, stream.Name, uri)
		if err != nil {
			return nil, err
		}
		result.Job = job
	}

	stream.Buffer = nil
	t.stats.Flushes++
	t.stats.RowsFlushed += uint64(result.Rows)
	t.metrics.flushed(stream.Name, reason, result.Rows)

	return result, nil
}

// load submits the warehouse load job for an uploaded batch. It is not awaited unless wait_for_load is set.
func (t *Target) load(ctx context.Context, stream string, uri string) (warehouse.Job, error) {
	if t.warehouse == nil {
		return nil, fmt.Errorf("upload_to_bq is enabled but no warehouse is configured")
	}
	if err := t.requireDataset(); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", uri, err)
	}

	table := warehouse.TableID{
		Project: t.config.BucketName,
		Dataset: t.config.BQDataset,
		Table:   stream,
	}

	t.logger.WithFields(log.Fields{"uri": uri, "table": table.String()}).Info("loading batch into table")
	job, err := t.warehouse.Load(ctx, uri, table, t.loadOptions())
	if err != nil {
		return nil, fmt.Errorf("error submitting load of %s into %s: %w", uri, table, err)
	}
	t.jobs = append(t.jobs, job)
	t.metrics.loadSubmitted(stream)

	if t.config.WaitForLoad {
		if err := job.Wait(ctx); err != nil {
			return nil, fmt.Errorf("load job %s into %s failed: %w", job.ID(), table, err)
		}
	}
	return job, nil
}

// requireDataset rejects BigQuery statements that would name a table without its dataset
func (t *Target) requireDataset() error {
	if t.config.WarehouseType == models.WarehouseBigQuery && t.config.BQDataset == "" {
		return fmt.Errorf("bq_dataset is required for warehouse_type %s", models.WarehouseBigQuery)
	}
	return nil
}

func (t *Target) loadOptions() warehouse.LoadOptions {
	return warehouse.LoadOptions{
		SkipLeadingRows: loadSkipLeadingRows,
		MaxBadRecords:   loadMaxBadRecords,
		Autodetect:      t.config.AutodetectSchema,
		FieldDelimiter:  string(t.config.DelimiterRune()),
		Quote:           `"`,
	}
}
