package warehouse

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/5amCurfew/xtkt-target/models"
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

const (
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
	driverSQLite   = "sqlite3"
	driverMSSQL    = "mssql"
)

// SQL loads batches into a database/sql warehouse by reading each object back and inserting its rows
type SQL struct {
	db     *sql.DB
	driver string
	store  ObjectOpener
	jobs   jobRunner
}

func NewSQL(ctx context.Context, config models.Config, store ObjectOpener) (*SQL, error) {
	if store == nil {
		return nil, fmt.Errorf("an object store is required for warehouse_type %s", config.WarehouseType)
	}

	if config.WarehouseURL == "" {
		return nil, fmt.Errorf("warehouse_url is required for warehouse_type %s", config.WarehouseType)
	}

	driver, dsn, err := driverFromURL(config.WarehouseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening warehouse: %w", err)
	}
	// sqlite in-memory databases are per connection
	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to warehouse: %w", err)
	}

	return &SQL{db: db, driver: driver, store: store}, nil
}

// driverFromURL maps a warehouse_url scheme to its database/sql driver and DSN
func driverFromURL(url string) (string, string, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "", "", fmt.Errorf("invalid warehouse URL: %s", url)
	}
	switch scheme {
	case "postgres", "postgresql":
		return driverPostgres, url, nil
	case "mysql":
		return driverMySQL, rest, nil
	case "sqlite":
		return driverSQLite, rest, nil
	case "file":
		return driverSQLite, url, nil
	case "sqlserver":
		return driverMSSQL, url, nil
	default:
		return "", "", fmt.Errorf("unsupported warehouse type: %s", scheme)
	}
}

func (w *SQL) Load(ctx context.Context, uri string, table TableID, opts LoadOptions) (Job, error) {
	ref := w.TableRef(table.Dataset, table.Table)
	job := w.jobs.start("load", func() error {
		return w.load(ctx, uri, ref, opts)
	})
	log.WithFields(log.Fields{"job_id": job.ID(), "table": ref, "uri": uri}).Info("load job submitted")
	return job, nil
}

func (w *SQL) load(ctx context.Context, uri string, ref string, opts LoadOptions) error {
	object, err := w.store.Open(ctx, uri)
	if err != nil {
		return err
	}
	defer object.Close()

	reader := csv.NewReader(object)
	reader.FieldsPerRecord = -1
	if opts.FieldDelimiter != "" {
		reader.Comma, _ = utf8.DecodeRuneInString(opts.FieldDelimiter)
	}

	var header []string
	for i := int64(0); i < opts.SkipLeadingRows; i++ {
		row, err := reader.Read()
		if err != nil {
			return fmt.Errorf("error reading leading rows of %s: %w", uri, err)
		}
		if header == nil {
			header = row
		}
	}
	if header == nil {
		return fmt.Errorf("cannot load %s into %s without a header row", uri, ref)
	}

	if opts.Autodetect {
		if _, err := w.db.ExecContext(ctx, w.createTableQuery(ref, header)); err != nil {
			return fmt.Errorf("error creating %s: %w", ref, err)
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting load transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, w.insertQuery(ref, header))
	if err != nil {
		return fmt.Errorf("error preparing insert into %s: %w", ref, err)
	}
	defer stmt.Close()

	var rows, bad int64
	args := make([]interface{}, len(header))
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) || (err == nil && len(row) != len(header)) {
			bad++
			if bad > opts.MaxBadRecords {
				return fmt.Errorf("load of %s into %s exceeded %d bad records", uri, ref, opts.MaxBadRecords)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading %s: %w", uri, err)
		}

		for i, field := range row {
			if field == "" {
				args[i] = nil
			} else {
				args[i] = field
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("error inserting into %s: %w", ref, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing load into %s: %w", ref, err)
	}
	log.WithFields(log.Fields{"table": ref, "rows": rows, "bad_records": bad}).Info("rows loaded")
	return nil
}

func (w *SQL) Query(ctx context.Context, query string) (Result, error) {
	result := Result{JobID: "query-" + uuid.NewString()}
	res, err := w.db.ExecContext(ctx, query)
	if err != nil {
		return result, fmt.Errorf("error executing query: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		result.RowsAffected = affected
	}
	return result, nil
}

// TableRef quotes dataset as the schema. sqlite has no schemas, so the dataset is dropped there.
func (w *SQL) TableRef(dataset string, table string) string {
	if dataset == "" || w.driver == driverSQLite {
		return w.quote(table)
	}
	return w.quote(dataset) + "." + w.quote(table)
}

// Close waits for outstanding loads before closing the connection pool
func (w *SQL) Close() error {
	return errors.Join(w.jobs.drain(), w.db.Close())
}

func (w *SQL) quote(identifier string) string {
	if w.driver == driverMySQL {
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (w *SQL) placeholder(i int) string {
	switch w.driver {
	case driverPostgres:
		return fmt.Sprintf("$%d", i)
	case driverMSSQL:
		return fmt.Sprintf("@p%d", i)
	default:
		return "?"
	}
}

func (w *SQL) createTableQuery(ref string, header []string) string {
	columnType := "TEXT"
	if w.driver == driverMSSQL {
		columnType = "NVARCHAR(MAX)"
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = w.quote(name) + " " + columnType
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", ref, strings.Join(columns, ", "))

	if w.driver == driverMSSQL {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", strings.ReplaceAll(ref, "'", "''"), create)
	}
	return strings.Replace(create, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
}

func (w *SQL) insertQuery(ref string, header []string) string {
	columns := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, name := range header {
		columns[i] = w.quote(name)
		placeholders[i] = w.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", ref, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}
