package lib

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/warehouse"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type upload struct {
	LocalPath string
	ObjectKey string
	Content   string
}

// memStore keeps uploaded batches in memory
type memStore struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (s *memStore) Upload(_ context.Context, localPath string, objectKey string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, upload{LocalPath: localPath, ObjectKey: objectKey, Content: string(content)})
	return "mem://bucket/" + objectKey, nil
}

func (s *memStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.uploads {
		if "mem://bucket/"+u.ObjectKey == uri {
			return io.NopCloser(strings.NewReader(u.Content)), nil
		}
	}
	return nil, fmt.Errorf("object %s not found", uri)
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Uploads() []upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upload(nil), s.uploads...)
}

type load struct {
	URI     string
	Table   warehouse.TableID
	Options warehouse.LoadOptions
}

type fakeJob struct {
	id  string
	err error
}

func (j *fakeJob) ID() string                   { return j.id }
func (j *fakeJob) Wait(_ context.Context) error { return j.err }

type fakeWarehouse struct {
	mu       sync.Mutex
	loads    []load
	queries  []string
	queryErr error
	jobErr   error
}

func (w *fakeWarehouse) Load(_ context.Context, uri string, table warehouse.TableID, opts warehouse.LoadOptions) (warehouse.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads = append(w.loads, load{URI: uri, Table: table, Options: opts})
	return &fakeJob{id: fmt.Sprintf("job-%d", len(w.loads)), err: w.jobErr}, nil
}

func (w *fakeWarehouse) Query(_ context.Context, sql string) (warehouse.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queryErr != nil {
		return warehouse.Result{}, w.queryErr
	}
	w.queries = append(w.queries, sql)
	return warehouse.Result{JobID: "query-job", RowsAffected: 7}, nil
}

func (w *fakeWarehouse) TableRef(dataset string, table string) string {
	return fmt.Sprintf("`%s`.%s", dataset, table)
}

func (w *fakeWarehouse) Close() error { return nil }

func testConfig(t *testing.T) models.Config {
	t.Helper()
	return models.Config{
		Delimiter:       ",",
		QuoteChar:       `"`,
		DestinationPath: t.TempDir(),
		BucketName:      "bucket",
		BQDataset:       "dataset",
		StorageType:     models.StorageLocal,
		WarehouseType:   models.WarehouseBigQuery,
	}
}

func newTestTarget(t *testing.T, config models.Config, store *memStore, wh *fakeWarehouse, opts ...Option) *Target {
	t.Helper()
	var w warehouse.Warehouse
	if wh != nil {
		w = wh
	}
	target, err := NewTarget(config, store, w, append([]Option{WithClock(fixedClock)}, opts...)...)
	require.NoError(t, err)
	return target
}

func lines(messages ...string) io.Reader {
	return strings.NewReader(strings.Join(messages, "\n") + "\n")
}
