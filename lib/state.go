package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/5amCurfew/xtkt-target/models"
	log "github.com/sirupsen/logrus"
)

// handleState flushes the stream the checkpoint refers to, then keeps the checkpoint
func (t *Target) handleState(ctx context.Context, message models.Message) error {
	t.logger.WithFields(log.Fields{"state": message.Value}).Info("setting state")

	t.mu.Lock()
	defer t.mu.Unlock()

	if stream, ok := t.streams[message.StateStream()]; ok && stream.Len() > 0 {
		if _, err := t.flush(ctx, stream, ReasonState); err != nil {
			return err
		}
	}

	t.state = message.Value
	return nil
}

// EmitState writes the checkpoint as one compact JSON line, nothing when state is nil
func EmitState(w io.Writer, state json.RawMessage) error {
	if state == nil {
		return nil
	}

	var line bytes.Buffer
	if err := json.Compact(&line, state); err != nil {
		return fmt.Errorf("error compacting state: %w", err)
	}
	line.WriteByte('\n')

	log.WithFields(log.Fields{"state": json.RawMessage(line.Bytes()[:line.Len()-1])}).Debug("emitting state")
	if _, err := w.Write(line.Bytes()); err != nil {
		return fmt.Errorf("error emitting state: %w", err)
	}
	return nil
}
