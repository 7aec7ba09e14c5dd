package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// permanentError marks a failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker drops the job instead of retrying it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker processes jobs of one type
type Worker struct {
	broker     Broker
	jobType    JobType
	handler    JobHandler
	numWorkers int
	pollWait   time.Duration
	backoff    func(retry int) time.Duration

	wg        sync.WaitGroup
	cancel    context.CancelFunc
	scheduler *gocron.Scheduler
}

// NewWorker creates a new worker
func NewWorker(broker Broker, jobType JobType, handler JobHandler, numWorkers int) *Worker {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Worker{
		broker:     broker,
		jobType:    jobType,
		handler:    handler,
		numWorkers: numWorkers,
		pollWait:   time.Second,
		backoff:    calculateBackoff,
		scheduler:  gocron.NewScheduler(time.UTC),
	}
}

// Start starts the worker goroutines and the delayed-job promoter
func (w *Worker) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	log.Printf("Starting %d workers for queue %s", w.numWorkers, w.jobType)

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(ctx, i)
	}

	if _, err := w.scheduler.Every(1).Second().SingletonMode().Do(func() {
		if n, err := w.broker.PromoteDue(ctx, w.jobType); err != nil {
			log.Printf("Error promoting delayed %s jobs: %v", w.jobType, err)
		} else if n > 0 {
			log.Printf("Promoted %d delayed %s jobs", n, w.jobType)
		}
	}); err != nil {
		w.cancel()
		w.wg.Wait()
		return fmt.Errorf("failed to schedule delayed job promotion: %w", err)
	}
	w.scheduler.StartAsync()
	return nil
}

// Stop stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	log.Printf("Stopping workers for queue %s", w.jobType)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.scheduler.Stop()
}

func (w *Worker) process(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			log.Printf("Worker %d for queue %s stopped", workerID, w.jobType)
			return
		}

		job, err := w.broker.Pop(ctx, w.jobType, w.pollWait)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Error dequeueing %s job: %v", w.jobType, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}

		w.run(ctx, job)
	}
}

// run executes one job and records its outcome. Failures are retried with
// backoff until MaxRetries is exhausted.
func (w *Worker) run(ctx context.Context, job *Job) {
	_, err := w.invoke(ctx, job)
	if err == nil {
		job.Status = JobStatusCompleted
		job.Error = ""
		if err := w.broker.Finish(ctx, job); err != nil {
			log.Printf("Error marking job %s as completed: %v", job.ID, err)
		}
		return
	}

	job.Error = err.Error()
	if IsPermanent(err) || job.RetryCount >= job.MaxRetries {
		job.Status = JobStatusDead
		log.Printf("Job %s (%s) failed permanently after %d retries: %v", job.ID, job.Type, job.RetryCount, err)
		if err := w.broker.Finish(ctx, job); err != nil {
			log.Printf("Error marking job %s as dead: %v", job.ID, err)
		}
		return
	}

	delay := w.backoff(job.RetryCount)
	job.RetryCount++
	job.Status = JobStatusPending
	job.RunAt = time.Now().Add(delay)
	log.Printf("Job %s (%s) failed, retry %d/%d in %s: %v", job.ID, job.Type, job.RetryCount, job.MaxRetries, delay, err)
	if err := w.broker.Push(ctx, job); err != nil {
		log.Printf("Error scheduling retry for job %s: %v", job.ID, err)
	}
}

func (w *Worker) invoke(ctx context.Context, job *Job) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return w.handler(ctx, *job)
}

// WorkerManager manages the workers of every job type
type WorkerManager struct {
	broker  Broker
	workers map[JobType]*Worker
	mu      sync.Mutex
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(broker Broker) *WorkerManager {
	return &WorkerManager{
		broker:  broker,
		workers: make(map[JobType]*Worker),
	}
}

// RegisterWorker registers a handler for a job type
func (m *WorkerManager) RegisterWorker(jobType JobType, handler JobHandler, numWorkers int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workers[jobType]; exists {
		log.Printf("Worker for queue %s already registered", jobType)
		return
	}
	m.workers[jobType] = NewWorker(m.broker, jobType, handler, numWorkers)
}

// StartAll starts all registered workers
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for jobType, worker := range m.workers {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s worker: %w", jobType, err)
		}
	}
	return nil
}

// StopAll stops all registered workers
func (m *WorkerManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, worker := range m.workers {
		worker.Stop()
	}
}
