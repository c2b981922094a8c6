package lib

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

func validateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid flush_schedule %q: %w", expr, err)
	}
	return nil
}

// startSchedule runs FlushAll on flush_schedule until the returned stop func is called.
// A failed scheduled flush is kept and surfaced by scheduledFlushError.
func (t *Target) startSchedule(ctx context.Context) (func(), error) {
	if t.config.FlushSchedule == "" {
		return func() {}, nil
	}

	c := cron.New()
	_, err := c.AddFunc(t.config.FlushSchedule, func() {
		t.logger.WithFields(log.Fields{"schedule": t.config.FlushSchedule}).Info("running scheduled flush")
		if err := t.FlushAll(ctx, ReasonSchedule); err != nil {
			t.logger.WithFields(log.Fields{"Error": err}).Error("scheduled flush failed")
			t.mu.Lock()
			if t.scheduleErr == nil {
				t.scheduleErr = err
			}
			t.mu.Unlock()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid flush_schedule %q: %w", t.config.FlushSchedule, err)
	}
	c.Start()

	var once sync.Once
	return func() {
		once.Do(func() {
			<-c.Stop().Done()
		})
	}, nil
}

func (t *Target) scheduledFlushError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scheduleErr != nil {
		return fmt.Errorf("scheduled flush failed: %w", t.scheduleErr)
	}
	return nil
}
