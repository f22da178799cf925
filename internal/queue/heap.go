package queue

import (
	"container/heap"

	"github.com/google/uuid"
)

// Job is one unit of queued judging work.
type Job struct {
	SubmissionID uuid.UUID
	ContestID    uuid.UUID
	Priority     int64 // higher runs first; admin re-judges use a boosted value
	EnqueuedAt   int64 // unix nanos, used to break priority ties FIFO
	Attempts     int
	index        int // heap bookkeeping
}

// jobHeap is a max-heap on Priority, tie-broken by earliest EnqueuedAt,
// the same two-key ordering pkg/orderbook's book used for price-then-time
// order matching.
type jobHeap struct {
	jobs []*Job
}

func (h *jobHeap) Len() int { return len(h.jobs) }

func (h *jobHeap) Less(i, j int) bool {
	if h.jobs[i].Priority != h.jobs[j].Priority {
		return h.jobs[i].Priority > h.jobs[j].Priority
	}
	return h.jobs[i].EnqueuedAt < h.jobs[j].EnqueuedAt
}

func (h *jobHeap) Swap(i, j int) {
	h.jobs[i], h.jobs[j] = h.jobs[j], h.jobs[i]
	h.jobs[i].index = i
	h.jobs[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	n := len(h.jobs)
	job := x.(*Job)
	job.index = n
	h.jobs = append(h.jobs, job)
}

func (h *jobHeap) Pop() interface{} {
	old := h.jobs
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	h.jobs = old[0 : n-1]
	return job
}

// MemQueue is an in-memory priority queue with RedisQueue's ordering,
// used by tests; the serve and worker commands always use RedisQueue. It
// is not shared across processes.
type MemQueue struct {
	h *jobHeap
}

// NewMemQueue constructs an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{h: &jobHeap{jobs: make([]*Job, 0)}}
}

// Push adds a job to the queue.
func (q *MemQueue) Push(job *Job) {
	heap.Push(q.h, job)
}

// Pop removes and returns the highest-priority job, or nil if empty.
func (q *MemQueue) Pop() *Job {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(q.h).(*Job)
}

// Len reports the number of queued jobs.
func (q *MemQueue) Len() int {
	return q.h.Len()
}
