// Package dispatch runs background jobs on a bounded worker pool. Webhook
// handlers reply to LINE immediately and queue the slow work (assistant runs,
// the voice pipeline, quiz generation) here so the webhook never blocks on a
// model call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
)

// ErrQueueFull is returned when the pending job queue is at capacity.
var ErrQueueFull = errors.New("dispatch: queue full")

// ErrStopped is returned when submitting after Stop.
var ErrStopped = errors.New("dispatch: stopped")

// Job is a unit of background work. The context carries the job timeout.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
	// Timeout bounds the job's context. Zero means no per-job deadline.
	Timeout time.Duration
}

// Dispatcher owns the worker goroutines and the pending job queue.
type Dispatcher struct {
	jobs    chan Job
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a dispatcher and starts its workers.
func New(workers, queueSize int, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &Dispatcher{
		jobs:    make(chan Job, queueSize),
		logger:  log.WithModule("dispatch"),
		metrics: m,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues a job. It never blocks: a full queue returns ErrQueueFull so
// the caller can tell the user to retry instead of stalling the webhook.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.jobs <- job:
		if d.metrics != nil {
			d.metrics.SetDispatchQueueDepth(len(d.jobs))
		}
		return nil
	default:
		if d.metrics != nil {
			d.metrics.RecordDispatchJob(job.Name, "rejected", 0)
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs to drain, up to the
// given timeout.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatch: drain timed out after %v", timeout)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		if d.metrics != nil {
			d.metrics.SetDispatchQueueDepth(len(d.jobs))
		}
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	start := time.Now()
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			d.logger.WithField("job", job.Name).
				WithField("panic", fmt.Sprint(r)).
				WithField("stack", string(debug.Stack())).
				Error("Job panicked")
		}
		if d.metrics != nil {
			d.metrics.RecordDispatchJob(job.Name, status, time.Since(start).Seconds())
		}
	}()

	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	if err := job.Run(ctx); err != nil {
		status = "error"
		d.logger.WithError(err).WithField("job", job.Name).Error("Job failed")
	}
}
