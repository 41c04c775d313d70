package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/arbiscout/arbiscout/internal/models"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Job is one queued scan request. Higher priority jobs run first.
type Job struct {
	ID        string
	Criteria  models.SearchCriteria
	Priority  int
	Retries   int
	CreatedAt time.Time
}

type Queue interface {
	Push(job *Job) error
	Pop(ctx context.Context) (*Job, error)
	Size() int
	Close() error
}

// InMemoryQueue is a priority queue whose Pop blocks until a job arrives,
// the queue closes, or the caller's context ends. Wakeups travel over a
// buffered channel so a canceled Pop never leaves the queue in a bad
// state.
type InMemoryQueue struct {
	jobs   []*Job
	mu     sync.Mutex
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		jobs: make([]*Job, 0),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(job *Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	q.sortByPriority()
	q.mu.Unlock()

	// One buffered signal is enough: a waiter re-checks the job slice
	// before blocking again.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.wake:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// Stable sort keeps FIFO order within a priority level.
func (q *InMemoryQueue) sortByPriority() {
	sort.SliceStable(q.jobs, func(i, j int) bool {
		return q.jobs[i].Priority > q.jobs[j].Priority
	})
}
