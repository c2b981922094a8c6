package lib

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/storage"
	"github.com/5amCurfew/xtkt-target/warehouse"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrRecordBeforeSchema = errors.New("record encountered before a corresponding schema")

type ExecutionMetric struct {
	RunID             string        `json:"run_id"`
	ExecutionStart    time.Time     `json:"execution_start,omitempty"`
	ExecutionEnd      time.Time     `json:"execution_end,omitempty"`
	ExecutionDuration time.Duration `json:"execution_duration,omitempty"`
	Messages          uint64        `json:"messages"`
	Malformed         uint64        `json:"malformed"`
	Records           uint64        `json:"records"`
	Flushes           uint64        `json:"flushes"`
	RowsFlushed       uint64        `json:"rows_flushed"`
	Truncations       uint64        `json:"truncations"`
}

// Target consumes Singer messages, buffers records per stream and flushes them to the object store
type Target struct {
	config     models.Config
	store      storage.ObjectStore
	warehouse  warehouse.Warehouse
	metrics    *Metrics
	thresholds Thresholds
	now        func() time.Time
	logger     *log.Entry

	// mu serializes buffer mutation and flushes, the scheduled flusher runs on another goroutine
	mu          sync.Mutex
	streams     map[string]*models.Stream
	order       []string
	state       json.RawMessage
	jobs        []warehouse.Job
	stats       ExecutionMetric
	scheduleErr error

	truncated map[string]struct{}
}

type Option func(*Target)

func WithMetrics(m *Metrics) Option {
	return func(t *Target) { t.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(t *Target) { t.now = now }
}

// NewTarget wires a target; wh may be nil when neither daily nor upload_to_bq is enabled
func NewTarget(config models.Config, store storage.ObjectStore, wh warehouse.Warehouse, opts ...Option) (*Target, error) {
	if store == nil {
		return nil, fmt.Errorf("an object store is required")
	}
	if config.UsesWarehouse() && wh == nil {
		return nil, fmt.Errorf("a warehouse is required when daily or upload_to_bq is enabled")
	}
	if config.FlattenSeparator == "" {
		config.FlattenSeparator = DefaultSeparator
	}
	if config.Delimiter == "" {
		config.Delimiter = ","
	}
	if err := validateSchedule(config.FlushSchedule); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	t := &Target{
		config:     config,
		store:      store,
		warehouse:  wh,
		thresholds: NewThresholds(config),
		now:        time.Now,
		logger:     log.WithFields(log.Fields{"run_id": runID}),
		streams:    map[string]*models.Stream{},
		truncated:  map[string]struct{}{},
		stats:      ExecutionMetric{RunID: runID},
	}
	for _, opt := range opts {
		opt(t)
	}

	if config.QuoteChar != "" && config.QuoteChar != `"` {
		t.logger.WithFields(log.Fields{"quotechar": config.QuoteChar}).Warn(`quotechar is not supported by the CSV writer, using "`)
	}

	return t, nil
}

// Persist reads messages from r until EOF and returns the last checkpoint, nil when there is none
func (t *Target) Persist(ctx context.Context, r io.Reader) (json.RawMessage, error) {
	t.stats.ExecutionStart = t.now()

	stop, err := t.startSchedule(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	reader := bufio.NewReader(r)
	for {
		raw, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("error reading input: %w", readErr)
		}

		if len(raw) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := t.scheduledFlushError(); err != nil {
				return nil, err
			}
			if line := bytes.TrimSpace(raw); len(line) > 0 {
				if err := t.Process(ctx, line); err != nil {
					return nil, err
				}
			}
		}

		if readErr != nil {
			break
		}
	}

	stop()
	if err := t.scheduledFlushError(); err != nil {
		return nil, err
	}
	if err := t.finish(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.ExecutionEnd = t.now()
	t.stats.ExecutionDuration = t.stats.ExecutionEnd.Sub(t.stats.ExecutionStart)
	return t.state, nil
}

// Process handles one input line
func (t *Target) Process(ctx context.Context, line []byte) error {
	t.stats.Messages++

	message, err := models.ParseMessage(line)
	if err != nil {
		t.stats.Malformed++
		t.metrics.malformedLine()
		t.logger.WithFields(log.Fields{"line": string(line), "Error": err}).Info("unable to parse message, skipping")
		return nil
	}

	if !message.Known() {
		t.logger.WithFields(log.Fields{"type": message.Type, "message": json.RawMessage(line)}).Warn("unknown message type")
		return nil
	}

	switch message.Type {
	case models.MessageSchema:
		return t.handleSchema(ctx, message)
	case models.MessageRecord:
		return t.handleRecord(ctx, message)
	default:
		return t.handleState(ctx, message)
	}
}

func (t *Target) handleSchema(ctx context.Context, message models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stream, ok := t.streams[message.Stream]
	if !ok {
		stream = models.NewStream(message.Stream)
		t.streams[message.Stream] = stream
		t.order = append(t.order, message.Stream)
	}
	if err := stream.SetSchema(message.Schema, message.KeyProperties); err != nil {
		t.logger.WithFields(log.Fields{"stream": message.Stream, "Error": err}).Warn("schema could not be compiled, records will not be validated")
	}

	return t.truncate(ctx, stream)
}

func (t *Target) handleRecord(ctx context.Context, message models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stream, ok := t.streams[message.Stream]
	if !ok {
		return fmt.Errorf("%w: stream %s", ErrRecordBeforeSchema, message.Stream)
	}

	if t.config.ValidateRecords {
		if valid, err := stream.Validate(message.Record); !valid {
			t.logger.WithFields(log.Fields{
				"stream": stream.Name,
				"record": message.Record,
				"Error":  err,
			}).Warn("record violates schema constraints")
		}
	}

	flat, err := Flatten(message.Record, t.config.FlattenSeparator)
	if err != nil {
		return fmt.Errorf("error processing record for stream %s: %w", stream.Name, err)
	}

	if err := t.appendRecord(ctx, stream, flat); err != nil {
		return err
	}

	// a checkpoint is only emitted when no record follows it
	t.state = nil
	return nil
}

// finish flushes leftover rows when flush_on_exit is set, otherwise reports them as dropped
func (t *Target) finish(ctx context.Context) error {
	if t.config.FlushOnExit {
		return t.FlushAll(ctx, ReasonExit)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range t.order {
		if n := t.streams[name].Len(); n > 0 {
			t.logger.WithFields(log.Fields{"stream": name, "unflushed_rows": n}).Warn("input ended with unflushed rows, they are not uploaded")
		}
	}
	return nil
}

// FlushAll flushes every non-empty stream in registration order
func (t *Target) FlushAll(ctx context.Context, reason FlushReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, name := range t.order {
		if _, err := t.flush(ctx, t.streams[name], reason); err != nil {
			return err
		}
	}
	return nil
}

// Jobs returns the load jobs submitted so far
func (t *Target) Jobs() []warehouse.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]warehouse.Job(nil), t.jobs...)
}

func (t *Target) Summary() ExecutionMetric {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Buffered returns the number of rows waiting in stream's buffer
func (t *Target) Buffered(stream string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.streams[stream]; ok {
		return s.Len()
	}
	return 0
}
