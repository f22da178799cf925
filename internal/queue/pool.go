package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LeaseDuration is how long a worker holds a job before its heartbeat
// must renew the lease; ReclaimStalled treats anything past this as
// abandoned.
const LeaseDuration = 30 * time.Second

// heartbeatInterval controls how often a running worker renews its
// current job's lease. It must be comfortably shorter than LeaseDuration.
const heartbeatInterval = 10 * time.Second

// ReclaimInterval controls how often the pool supervisor scans for
// stalled leases.
const ReclaimInterval = 15 * time.Second

// JobHandler processes one job to completion.
type JobHandler func(ctx context.Context, job *Job) error

// Pool runs a dynamically-sized set of judging workers against a
// RedisQueue. Workers and the reclaim and resize loops run in one errgroup
// and share its context, so cancelling the context given to Run stops all
// of them and Run returns once every goroutine has exited instead of
// leaking any, the same shutdown discipline the teacher's matching engine
// used for its book-processing loop. Workers log dequeue and handler
// errors rather than returning them, so one failing job does not stop the
// pool.
type Pool struct {
	queue   *RedisQueue
	handler JobHandler
	logger  *zap.Logger

	size   int64 // atomic, current target worker count
	active int64 // atomic, currently running workers

	resizeCh chan int
	mu       sync.Mutex
}

// NewPool constructs a Pool with an initial worker count.
func NewPool(q *RedisQueue, handler JobHandler, logger *zap.Logger, initialSize int) *Pool {
	return &Pool{
		queue:    q,
		handler:  handler,
		logger:   logger,
		size:     int64(initialSize),
		resizeCh: make(chan int, 1),
	}
}

// Resize changes the target worker count; workers are added or removed
// asynchronously by Run's control loop rather than this call blocking.
func (p *Pool) Resize(n int) {
	select {
	case p.resizeCh <- n:
	default:
		// A resize is already pending; overwrite it with the latest value.
		select {
		case <-p.resizeCh:
		default:
		}
		p.resizeCh <- n
	}
}

// ActiveWorkers reports how many workers are currently running.
func (p *Pool) ActiveWorkers() int {
	return int(atomic.LoadInt64(&p.active))
}

// Run drives the pool until ctx is cancelled. It launches the reclaim
// supervisor and the initial worker set, then reacts to Resize calls by
// spinning additional worker goroutines up (down-sizing is cooperative:
// a worker that sees the target shrink below its index exits after its
// current job).
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p.runReclaimLoop(ctx)
		return nil
	})

	target := int(atomic.LoadInt64(&p.size))
	for i := 0; i < target; i++ {
		idx := i
		g.Go(func() error {
			p.runWorker(ctx, idx)
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-p.resizeCh:
				old := atomic.SwapInt64(&p.size, int64(n))
				if int64(n) > old {
					for i := old; i < int64(n); i++ {
						idx := int(i)
						g.Go(func() error {
							p.runWorker(ctx, idx)
							return nil
						})
					}
				}
			}
		}
	})

	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, idx int) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	for {
		if int64(idx) >= atomic.LoadInt64(&p.size) {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, LeaseDuration)
		if err != nil {
			p.logger.Error("dequeue failed", zap.Int("worker", idx), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		p.processJob(ctx, job)
	}
}

func (p *Pool) processJob(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.queue.Heartbeat(jobCtx, job.SubmissionID, LeaseDuration); err != nil {
					p.logger.Warn("heartbeat failed", zap.String("submission_id", job.SubmissionID.String()), zap.Error(err))
				}
			}
		}
	}()

	err := p.handler(jobCtx, job)
	close(done)

	if err != nil {
		p.logger.Error("job handler failed", zap.String("submission_id", job.SubmissionID.String()), zap.Error(err))
		// Leave the job in the active set; ReclaimStalled will requeue it
		// once its lease expires, with an incremented attempt count.
		return
	}

	if ackErr := p.queue.Ack(ctx, job.SubmissionID); ackErr != nil {
		p.logger.Error("ack failed", zap.String("submission_id", job.SubmissionID.String()), zap.Error(ackErr))
	}
}

func (p *Pool) runReclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, dead, err := p.queue.ReclaimStalled(ctx)
			if err != nil {
				p.logger.Error("reclaim stalled failed", zap.Error(err))
				continue
			}
			if requeued > 0 || dead > 0 {
				p.logger.Info("reclaimed stalled jobs", zap.Int("requeued", requeued), zap.Int("dead_lettered", dead))
			}
		}
	}
}
