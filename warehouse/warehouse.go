// Package warehouse submits load jobs and queries to the destination warehouse
package warehouse

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/5amCurfew/xtkt-target/models"
)

// TableID is a fully qualified destination table
type TableID struct {
	Project string
	Dataset string
	Table   string
}

func (t TableID) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Project, t.Dataset, t.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

type LoadOptions struct {
	SkipLeadingRows int64
	MaxBadRecords   int64
	Autodetect      bool
	FieldDelimiter  string
	Quote           string
}

// Job is a submitted load. Submission does not wait for it.
type Job interface {
	ID() string
	Wait(ctx context.Context) error
}

type Result struct {
	JobID        string
	RowsAffected int64
}

type Warehouse interface {
	// Load submits a load of the CSV object at uri into table and returns without waiting
	Load(ctx context.Context, uri string, table TableID, opts LoadOptions) (Job, error)
	// Query runs sql and waits for it to finish
	Query(ctx context.Context, sql string) (Result, error)
	// TableRef renders a dataset-qualified table reference in the warehouse's dialect
	TableRef(dataset string, table string) string
	Close() error
}

// ObjectOpener reads back uploaded batches for warehouses that cannot load from the object store themselves
type ObjectOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// New builds the warehouse selected by warehouse_type. Loads that read objects back go through store.
func New(ctx context.Context, config models.Config, store ObjectOpener) (Warehouse, error) {
	switch config.WarehouseType {
	case models.WarehouseBigQuery:
		return NewBigQuery(ctx, config)
	case models.WarehouseDuckDB:
		return NewDuckDB(ctx, config, store)
	case models.WarehousePostgres, models.WarehouseMySQL, models.WarehouseSQLite, models.WarehouseSQLServer:
		return NewSQL(ctx, config, store)
	default:
		return nil, fmt.Errorf("unsupported warehouse_type %q", config.WarehouseType)
	}
}
