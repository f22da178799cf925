package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// MaxAttempts bounds how many times a stalled job is reclaimed before it
// is moved to the dead-letter list instead of being requeued forever.
const MaxAttempts = 5

// RedisQueue is the durable, cross-process priority queue backing the
// judging pipeline, built on Redis sorted sets the way the teacher's
// portfolio manager leaned on Redis for a shared cache tier.
type RedisQueue struct {
	client *redis.Client
	prefix string
	seq    int64
}

func keyPending(prefix string) string { return prefix + ":pending" }
func keyActive(prefix string) string  { return prefix + ":active" }
func keyDead(prefix string) string    { return prefix + ":dead" }
func keyJob(prefix, id string) string { return prefix + ":job:" + id }

// NewRedisQueue constructs a RedisQueue under the given key prefix, e.g.
// "judgeboard:queue".
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix}
}

// score packs priority (descending) and a monotonic sequence (ascending,
// for FIFO among equal priorities) into a single sortable float64, since
// Redis sorted sets only order by one score. Priority dominates the high
// bits; sequence breaks ties without ever flipping a priority ordering
// for any realistic job count.
func score(priority int64, seq int64) float64 {
	return -float64(priority)*1e12 + float64(seq)
}

// Enqueue adds a job to the pending set.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	q.seq++
	if job.EnqueuedAt == 0 {
		job.EnqueuedAt = time.Now().UnixNano()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, keyJob(q.prefix, job.SubmissionID.String()), payload, 0)
	pipe.ZAdd(ctx, keyPending(q.prefix), &redis.Z{
		Score:  score(job.Priority, q.seq),
		Member: job.SubmissionID.String(),
	})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue pops the highest-priority pending job and leases it for
// leaseDuration, moving it to the active set keyed by lease deadline so a
// crashed worker's jobs can be reclaimed later. Returns nil, nil if the
// queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context, leaseDuration time.Duration) (*Job, error) {
	results, err := q.client.ZPopMin(ctx, keyPending(q.prefix), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	submissionID := results[0].Member.(string)
	job, err := q.loadJob(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// Job hash expired or was removed out of band; drop the dangling
		// pointer rather than handing a worker a job it can't load.
		return nil, nil
	}

	deadline := time.Now().Add(leaseDuration).UnixNano()
	if err := q.client.ZAdd(ctx, keyActive(q.prefix), &redis.Z{
		Score:  float64(deadline),
		Member: submissionID,
	}).Err(); err != nil {
		return nil, fmt.Errorf("queue: lease: %w", err)
	}

	return job, nil
}

// Heartbeat extends a leased job's deadline, called periodically by the
// worker still processing it.
func (q *RedisQueue) Heartbeat(ctx context.Context, submissionID uuid.UUID, leaseDuration time.Duration) error {
	deadline := time.Now().Add(leaseDuration).UnixNano()
	return q.client.ZAdd(ctx, keyActive(q.prefix), &redis.Z{
		Score:  float64(deadline),
		Member: submissionID.String(),
	}).Err()
}

// Ack removes a job from the active set and deletes its payload,
// completing its lifecycle.
func (q *RedisQueue) Ack(ctx context.Context, submissionID uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyActive(q.prefix), submissionID.String())
	pipe.Del(ctx, keyJob(q.prefix, submissionID.String()))
	_, err := pipe.Exec(ctx)
	return err
}

// ReclaimStalled scans the active set for leases past their deadline and
// either requeues them with an incremented attempt count, or moves them
// to the dead-letter list once MaxAttempts is exceeded. It is meant to be
// called periodically (e.g. every heartbeat interval) by one pool
// supervisor goroutine.
func (q *RedisQueue) ReclaimStalled(ctx context.Context) (requeued int, deadLettered int, err error) {
	now := float64(time.Now().UnixNano())
	stalled, err := q.client.ZRangeByScore(ctx, keyActive(q.prefix), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue: scan stalled: %w", err)
	}

	for _, submissionID := range stalled {
		job, loadErr := q.loadJob(ctx, submissionID)
		if loadErr != nil || job == nil {
			q.client.ZRem(ctx, keyActive(q.prefix), submissionID)
			continue
		}

		q.client.ZRem(ctx, keyActive(q.prefix), submissionID)
		job.Attempts++

		if job.Attempts > MaxAttempts {
			payload, _ := json.Marshal(job)
			q.client.RPush(ctx, keyDead(q.prefix), payload)
			q.client.Del(ctx, keyJob(q.prefix, submissionID))
			deadLettered++
			continue
		}

		q.seq++
		payload, _ := json.Marshal(job)
		q.client.Set(ctx, keyJob(q.prefix, submissionID), payload, 0)
		q.client.ZAdd(ctx, keyPending(q.prefix), &redis.Z{
			Score:  score(job.Priority, q.seq),
			Member: submissionID,
		})
		requeued++
	}

	return requeued, deadLettered, nil
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, keyPending(q.prefix)).Result()
}

// DeadLetterLen returns the number of jobs in the dead-letter list.
func (q *RedisQueue) DeadLetterLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, keyDead(q.prefix)).Result()
}

// Pause blocks new dequeues by renaming the pending set out of the way;
// Resume moves it back. Used by the admin queue-control endpoints.
func (q *RedisQueue) Pause(ctx context.Context) error {
	return q.client.Rename(ctx, keyPending(q.prefix), keyPending(q.prefix)+":paused").Err()
}

func (q *RedisQueue) Resume(ctx context.Context) error {
	return q.client.Rename(ctx, keyPending(q.prefix)+":paused", keyPending(q.prefix)).Err()
}

// Clean drops the dead-letter list after an admin has reviewed it.
func (q *RedisQueue) Clean(ctx context.Context) error {
	return q.client.Del(ctx, keyDead(q.prefix)).Err()
}

func (q *RedisQueue) loadJob(ctx context.Context, submissionID string) (*Job, error) {
	payload, err := q.client.Get(ctx, keyJob(q.prefix, submissionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load job %s: %w", submissionID, err)
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job %s: %w", submissionID, err)
	}
	return &job, nil
}
