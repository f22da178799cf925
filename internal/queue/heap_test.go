package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemQueuePopsHighestPriorityFirst(t *testing.T) {
	q := NewMemQueue()

	low := &Job{SubmissionID: uuid.New(), Priority: 1, EnqueuedAt: 1}
	high := &Job{SubmissionID: uuid.New(), Priority: 10, EnqueuedAt: 2}
	mid := &Job{SubmissionID: uuid.New(), Priority: 5, EnqueuedAt: 3}

	q.Push(low)
	q.Push(high)
	q.Push(mid)

	if got := q.Pop(); got != high {
		t.Fatalf("expected high priority job first, got %+v", got)
	}
	if got := q.Pop(); got != mid {
		t.Fatalf("expected mid priority job second, got %+v", got)
	}
	if got := q.Pop(); got != low {
		t.Fatalf("expected low priority job third, got %+v", got)
	}
	if got := q.Pop(); got != nil {
		t.Fatalf("expected nil on empty queue, got %+v", got)
	}
}

func TestMemQueueBreaksTiesFIFO(t *testing.T) {
	q := NewMemQueue()

	first := &Job{SubmissionID: uuid.New(), Priority: 5, EnqueuedAt: time.Now().UnixNano()}
	time.Sleep(time.Microsecond)
	second := &Job{SubmissionID: uuid.New(), Priority: 5, EnqueuedAt: time.Now().UnixNano()}

	q.Push(second)
	q.Push(first)

	if got := q.Pop(); got != first {
		t.Fatalf("expected FIFO tiebreak to return the earlier-enqueued job first")
	}
	if got := q.Pop(); got != second {
		t.Fatalf("expected second job after first")
	}
}

func TestMemQueueLen(t *testing.T) {
	q := NewMemQueue()
	if q.Len() != 0 {
		t.Fatalf("new queue should be empty")
	}
	q.Push(&Job{SubmissionID: uuid.New(), Priority: 1})
	q.Push(&Job{SubmissionID: uuid.New(), Priority: 2})
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
}
