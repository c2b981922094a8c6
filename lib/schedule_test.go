package lib

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, validateSchedule(""))
	assert.NoError(t, validateSchedule("*/5 * * * *"))
	assert.NoError(t, validateSchedule("@every 1m"))
	assert.Error(t, validateSchedule("every five minutes"))
	assert.Error(t, validateSchedule("* * *"))
}

func TestScheduledFlush(t *testing.T) {
	store := &memStore{}
	config := testConfig(t)
	config.FlushSchedule = "@every 1s"
	target := newTestTarget(t, config, store, nil)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := target.Persist(context.Background(), r)
		done <- err
	}()

	_, err := io.WriteString(w, schemaS+"\n"+`{"type": "RECORD", "stream": "s", "record": {"id": 1}}`+"\n")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.Uploads()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, <-done)
	assert.Equal(t, 0, target.Buffered("s"))
}

func TestScheduledFlushErrorIsFatal(t *testing.T) {
	store := &memStore{err: errors.New("bucket unavailable")}
	config := testConfig(t)
	config.FlushSchedule = "@every 1s"
	target := newTestTarget(t, config, store, nil)

	r, w := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := target.Persist(context.Background(), r)
		done <- err
	}()

	_, err := io.WriteString(w, schemaS+"\n"+`{"type": "RECORD", "stream": "s", "record": {"id": 1}}`+"\n")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return target.scheduledFlushError() != nil
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, w.Close())
	assert.ErrorContains(t, <-done, "bucket unavailable")
}
