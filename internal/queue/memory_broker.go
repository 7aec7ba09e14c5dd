package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process Broker for single-instance deployments and tests
type MemoryBroker struct {
	mu       sync.Mutex
	ready    map[JobType][]*Job
	delayed  map[JobType][]*Job
	finished map[uuid.UUID]Job
	notify   chan struct{}
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		ready:    make(map[JobType][]*Job),
		delayed:  make(map[JobType][]*Job),
		finished: make(map[uuid.UUID]Job),
		notify:   make(chan struct{}, 1),
	}
}

var _ Broker = (*MemoryBroker)(nil)

func (b *MemoryBroker) Push(ctx context.Context, job *Job) error {
	b.mu.Lock()
	job.UpdatedAt = time.Now()
	copied := *job
	if copied.RunAt.After(time.Now()) {
		b.delayed[job.Type] = append(b.delayed[job.Type], &copied)
	} else {
		b.ready[job.Type] = append(b.ready[job.Type], &copied)
	}
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) take(jobType JobType) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ready[jobType]) == 0 {
		return nil
	}
	job := b.ready[jobType][0]
	b.ready[jobType] = b.ready[jobType][1:]
	job.Status = JobStatusProcessing
	return job
}

func (b *MemoryBroker) Pop(ctx context.Context, jobType JobType, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if job := b.take(jobType); job != nil {
			return job, nil
		}
		select {
		case <-b.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *MemoryBroker) PromoteDue(ctx context.Context, jobType JobType) (int, error) {
	b.mu.Lock()
	now := time.Now()
	var keep []*Job
	moved := 0
	for _, job := range b.delayed[jobType] {
		if job.RunAt.After(now) {
			keep = append(keep, job)
			continue
		}
		b.ready[jobType] = append(b.ready[jobType], job)
		moved++
	}
	b.delayed[jobType] = keep
	b.mu.Unlock()

	if moved > 0 {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
	return moved, nil
}

func (b *MemoryBroker) Finish(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	job.UpdatedAt = time.Now()
	b.finished[job.ID] = *job
	return nil
}

// Delayed returns the jobs waiting for their run time
func (b *MemoryBroker) Delayed(jobType JobType) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Job, 0, len(b.delayed[jobType]))
	for _, j := range b.delayed[jobType] {
		out = append(out, *j)
	}
	return out
}

// Finished returns the final state of a job, if it has one
func (b *MemoryBroker) Finished(id uuid.UUID) (Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.finished[id]
	return job, ok
}
