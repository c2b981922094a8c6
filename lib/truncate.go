package lib

import (
	"context"
	"fmt"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/util"
	log "github.com/sirupsen/logrus"
)

const (
	callsReportStream     = "calls_report"
	callsReportDateColumn = "DATE(start_time_utc)"
)

// dateColumn resolves the column that partitions a stream's table by day
func dateColumn(stream *models.Stream) (string, bool) {
	if stream.Name == callsReportStream {
		return callsReportDateColumn, true
	}
	return stream.DateColumn()
}

// truncate deletes yesterday's rows from the stream's table, at most once per stream per run.
// It only applies in daily mode to streams with a date column.
func (t *Target) truncate(ctx context.Context, stream *models.Stream) error {
	if !t.config.Daily.Enabled() {
		return nil
	}
	column, ok := dateColumn(stream)
	if !ok {
		return nil
	}
	if _, done := t.truncated[stream.Name]; done {
		return nil
	}
	if t.warehouse == nil {
		return fmt.Errorf("daily mode is enabled but no warehouse is configured")
	}
	if err := t.requireDataset(); err != nil {
		return fmt.Errorf("error truncating table for stream %s: %w", stream.Name, err)
	}

	yesterday := util.Yesterday(t.now())
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = '%s'", t.warehouse.TableRef(t.config.BQDataset, stream.Name), column, yesterday)

	logger := t.logger.WithFields(log.Fields{"stream": stream.Name, "query": query})
	logger.Info("truncating table")

	result, err := t.warehouse.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("error truncating table for stream %s: %w", stream.Name, err)
	}
	logger.WithFields(log.Fields{"job_id": result.JobID, "rows_affected": result.RowsAffected}).Info("table truncated")

	t.truncated[stream.Name] = struct{}{}
	t.stats.Truncations++
	t.metrics.truncatedTable(stream.Name)
	return nil
}
