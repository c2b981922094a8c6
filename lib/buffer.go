package lib

import (
	"context"

	"github.com/5amCurfew/xtkt-target/models"
)

const DefaultMaxRows = 1000000

var defaultStreamMaxRows = map[string]int{
	"AD_PERFORMANCE_REPORT": 250000,
	"proposal":              50000,
}

// Thresholds is the row-count flush policy
type Thresholds struct {
	Default int
	Streams map[string]int
}

func NewThresholds(config models.Config) Thresholds {
	th := Thresholds{
		Default: DefaultMaxRows,
		Streams: make(map[string]int, len(defaultStreamMaxRows)+len(config.StreamMaxRows)),
	}
	if config.MaxRows > 0 {
		th.Default = config.MaxRows
	}
	for stream, rows := range defaultStreamMaxRows {
		th.Streams[stream] = rows
	}
	for stream, rows := range config.StreamMaxRows {
		th.Streams[stream] = rows
	}
	return th
}

func (th Thresholds) For(stream string) int {
	if rows, ok := th.Streams[stream]; ok {
		return rows
	}
	return th.Default
}

// appendRecord buffers a flattened record and flushes the stream once it reaches its threshold.
// The caller holds t.mu.
func (t *Target) appendRecord(ctx context.Context, stream *models.Stream, flat *FlatRecord) error {
	if stream.Header == nil {
		stream.Header = make([]string, len(flat.Keys))
		copy(stream.Header, flat.Keys)
	}

	// rows are positional, a record with a different field set will misalign
	stream.Buffer = append(stream.Buffer, flat.Values)
	t.stats.Records++
	t.metrics.recordBuffered(stream.Name)

	if stream.Len() >= t.thresholds.For(stream.Name) {
		if _, err := t.flush(ctx, stream, ReasonThreshold); err != nil {
			return err
		}
	}
	return nil
}
