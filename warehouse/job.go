package warehouse

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// asyncJob is a load running on its own goroutine
type asyncJob struct {
	id   string
	done chan struct{}
	err  error
}

func (j *asyncJob) ID() string {
	return j.id
}

func (j *asyncJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobRunner tracks in-process loads so Close can wait for them
type jobRunner struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (r *jobRunner) start(prefix string, fn func() error) *asyncJob {
	job := &asyncJob{
		id:   prefix + "-" + uuid.NewString(),
		done: make(chan struct{}),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		job.err = fn()
		close(job.done)

		if job.err != nil {
			log.WithFields(log.Fields{"job_id": job.id, "Error": job.err}).Error("load job failed")
			r.mu.Lock()
			r.errs = append(r.errs, job.err)
			r.mu.Unlock()
			return
		}
		log.WithFields(log.Fields{"job_id": job.id}).Info("load job complete")
	}()

	return job
}

// drain waits for every started job and returns their joined errors
func (r *jobRunner) drain() error {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}
