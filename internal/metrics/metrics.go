// Package metrics buffers queue, judging, and worker measurements and
// writes them to InfluxDB off a background goroutine, the same
// buffered-channel-plus-select-loop shape the teacher's alert engine used
// for price updates, so a slow or unreachable Influx instance never
// blocks a judging worker.
package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

const pointBuffer = 512

// point is the internal representation queued onto the writer channel;
// Reporter methods build one of these per call instead of touching the
// Influx client directly so callers never block on a write.
type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
	at          time.Time
}

// Reporter accepts measurements from judging workers and the queue and
// relays them to InfluxDB asynchronously.
type Reporter struct {
	client influxdb2.Client
	write  api.WriteAPI
	logger *zap.Logger

	points chan point
	stopCh chan struct{}
}

// NewReporter connects to InfluxDB and starts the background writer.
// Call Close to flush and disconnect.
func NewReporter(url, token, org, bucket string, logger *zap.Logger) *Reporter {
	client := influxdb2.NewClient(url, token)
	r := &Reporter{
		client: client,
		write:  client.WriteAPI(org, bucket),
		logger: logger,
		points: make(chan point, pointBuffer),
		stopCh: make(chan struct{}),
	}

	go r.drainErrors()
	go r.run()

	return r
}

func (r *Reporter) run() {
	for {
		select {
		case p := <-r.points:
			fields := influxdb2.NewPoint(p.measurement, p.tags, p.fields, p.at)
			r.write.WritePoint(fields)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reporter) drainErrors() {
	for err := range r.write.Errors() {
		r.logger.Warn("metrics: influx write failed", zap.Error(err))
	}
}

func (r *Reporter) enqueue(p point) {
	select {
	case r.points <- p:
	default:
		r.logger.Warn("metrics: point buffer full, dropping sample", zap.String("measurement", p.measurement))
	}
}

// QueueDepth records the current pending/active job counts for a contest's
// queue.
func (r *Reporter) QueueDepth(contestID string, pending, active int) {
	r.enqueue(point{
		measurement: "queue_depth",
		tags:        map[string]string{"contest_id": contestID},
		fields:      map[string]interface{}{"pending": pending, "active": active},
		at:          time.Now(),
	})
}

// JudgeLatency records one judgment's end-to-end wall time, bucketed by
// language and final verdict so a histogram can be built downstream in
// Influx/Grafana rather than in-process.
func (r *Reporter) JudgeLatency(contestID, language, verdict string, d time.Duration) {
	r.enqueue(point{
		measurement: "judge_latency_ms",
		tags:        map[string]string{"contest_id": contestID, "language": language, "verdict": verdict},
		fields:      map[string]interface{}{"value": float64(d.Milliseconds())},
		at:          time.Now(),
	})
}

// WorkerUtilization records how many of a pool's workers are busy.
func (r *Reporter) WorkerUtilization(active, size int64) {
	r.enqueue(point{
		measurement: "worker_utilization",
		tags:        map[string]string{},
		fields:      map[string]interface{}{"active": active, "size": size},
		at:          time.Now(),
	})
}

// SubmissionResult increments a per-verdict counter for a contest.
func (r *Reporter) SubmissionResult(contestID, problemID, verdict string) {
	r.enqueue(point{
		measurement: "submission_result",
		tags:        map[string]string{"contest_id": contestID, "problem_id": problemID, "verdict": verdict},
		fields:      map[string]interface{}{"count": 1},
		at:          time.Now(),
	})
}

// Flush asks the Influx write API to send the points it holds and waits
// until that finishes or ctx is done. Points still queued in the
// Reporter's own channel, not yet handed to the write API, are not part
// of the flush.
func (r *Reporter) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.write.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Close stops the background writer, flushes the points the Influx write
// API holds, and closes the client; points still queued in the Reporter's
// own channel are dropped.
func (r *Reporter) Close() {
	close(r.stopCh)
	r.write.Flush()
	r.client.Close()
}
