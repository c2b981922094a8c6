package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/storage"
	"github.com/5amCurfew/xtkt-target/util"
	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"
	log "github.com/sirupsen/logrus"
)

var duckDBBootQueries = []string{
	"SET timezone='UTC'",
}

// DuckDB loads batches with read_csv. warehouse_url is the database file, empty for in-memory.
type DuckDB struct {
	db    *sql.DB
	store ObjectOpener
	jobs  jobRunner
}

func NewDuckDB(ctx context.Context, config models.Config, store ObjectOpener) (*DuckDB, error) {
	path := strings.TrimPrefix(config.WarehouseURL, "duckdb://")
	connector, err := duckdb.NewConnector(util.ExpandPath(path), nil)
	if err != nil {
		return nil, fmt.Errorf("error opening duckdb: %w", err)
	}
	db := sql.OpenDB(connector)

	for _, query := range duckDBBootQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			db.Close()
			return nil, fmt.Errorf("error running %q: %w", query, err)
		}
	}

	return &DuckDB{db: db, store: store}, nil
}

func (d *DuckDB) Load(ctx context.Context, uri string, table TableID, opts LoadOptions) (Job, error) {
	job := d.jobs.start("load", func() error {
		return d.load(ctx, uri, table, opts)
	})
	log.WithFields(log.Fields{"job_id": job.ID(), "table": table.String(), "uri": uri}).Info("load job submitted")
	return job, nil
}

func (d *DuckDB) load(ctx context.Context, uri string, table TableID, opts LoadOptions) error {
	path, cleanup, err := d.localCopy(ctx, uri)
	if err != nil {
		return err
	}
	defer cleanup()

	rejects := ""
	if opts.MaxBadRecords > 0 {
		rejects = "load_rejects_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	queries := loadQueries(d.TableRef(table.Dataset, table.Table), table.Dataset, path, opts, rejects)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, query := range queries {
		log.WithFields(log.Fields{"query": query}).Debug("querying duckdb")
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error loading %s into %s: %w", uri, table, err)
		}
	}

	if rejects != "" {
		if err := checkRejects(ctx, tx, rejects, opts.MaxBadRecords); err != nil {
			return fmt.Errorf("error loading %s into %s: %w", uri, table, err)
		}
	}
	return tx.Commit()
}

// checkRejects fails once more lines were rejected than maxBad, and drops the rejects tables
func checkRejects(ctx context.Context, tx *sql.Tx, rejects string, maxBad int64) error {
	var bad int64
	query := fmt.Sprintf("SELECT count(DISTINCT line) FROM %s", quoteIdentifier(rejects+"_errors"))
	if err := tx.QueryRowContext(ctx, query).Scan(&bad); err != nil {
		return fmt.Errorf("error counting rejected rows: %w", err)
	}
	if bad > maxBad {
		return fmt.Errorf("%d rejected rows exceeds the limit of %d", bad, maxBad)
	}
	if bad > 0 {
		log.WithFields(log.Fields{"rejected_rows": bad}).Warn("load skipped rejected rows")
	}

	for _, suffix := range []string{"_errors", "_scans"} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(rejects+suffix)); err != nil {
			return fmt.Errorf("error dropping rejects table: %w", err)
		}
	}
	return nil
}

// localCopy returns a filesystem path for uri, downloading non-local objects to a temp file
func (d *DuckDB) localCopy(ctx context.Context, uri string) (string, func(), error) {
	if path, err := storage.LocalPath(uri); err == nil {
		return path, func() {}, nil
	}
	if d.store == nil {
		return "", nil, fmt.Errorf("cannot read %s without an object store", uri)
	}

	object, err := d.store.Open(ctx, uri)
	if err != nil {
		return "", nil, err
	}
	defer object.Close()

	tmp, err := os.CreateTemp("", "duckdb-load-*.csv")
	if err != nil {
		return "", nil, fmt.Errorf("error creating temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, object); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("error downloading %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("error downloading %s: %w", uri, err)
	}
	return tmp.Name(), cleanup, nil
}

func (d *DuckDB) Query(ctx context.Context, query string) (Result, error) {
	result := Result{JobID: "query-" + uuid.NewString()}
	res, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return result, fmt.Errorf("error executing query: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		result.RowsAffected = affected
	}
	return result, nil
}

func (d *DuckDB) TableRef(dataset string, table string) string {
	if dataset == "" {
		return quoteIdentifier(table)
	}
	return quoteIdentifier(dataset) + "." + quoteIdentifier(table)
}

func (d *DuckDB) Close() error {
	return errors.Join(d.jobs.drain(), d.db.Close())
}

// loadQueries builds the statements that append the CSV at path to ref.
// When rejects is set the insert keeps bad rows in the rejects_errors and rejects_scans tables instead of failing.
func loadQueries(ref string, dataset string, path string, opts LoadOptions, rejects string) []string {
	var queries []string
	if opts.Autodetect {
		if dataset != "" {
			queries = append(queries, "CREATE SCHEMA IF NOT EXISTS "+quoteIdentifier(dataset))
		}
		queries = append(queries, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s LIMIT 0", ref, readCSV(path, opts, "")))
	}
	return append(queries, fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM %s", ref, readCSV(path, opts, rejects)))
}

func readCSV(path string, opts LoadOptions, rejects string) string {
	args := []string{quoteLiteral(path), "header = true"}
	if opts.FieldDelimiter != "" {
		args = append(args, "delim = "+quoteLiteral(opts.FieldDelimiter))
	}
	if opts.Quote != "" {
		args = append(args, "quote = "+quoteLiteral(opts.Quote))
	}
	if opts.SkipLeadingRows > 1 {
		args = append(args, fmt.Sprintf("skip = %d", opts.SkipLeadingRows-1))
	}
	if rejects != "" {
		args = append(args,
			"store_rejects = true",
			"rejects_table = "+quoteLiteral(rejects+"_errors"),
			"rejects_scan = "+quoteLiteral(rejects+"_scans"),
		)
	}
	return fmt.Sprintf("read_csv(%s)", strings.Join(args, ", "))
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
