// Package loader runs image decodes off the calling thread.
//
// A Job's Run step produces a complete pixel buffer on a worker goroutine;
// its Done step then publishes that buffer. Done is never handed a partial
// buffer, so readers that only observe what Done publishes see either the
// old data or the new data.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muraty261/GlistEngine/internal/pixel"
)

var (
	// ErrQueueFull is returned by Submit when no slot is free.
	ErrQueueFull = errors.New("loader: queue is full")

	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("loader: queue is shutting down")
)

// Job is one background load.
type Job struct {
	// Name identifies the job in logs and Status.
	Name string
	// Run produces the buffer. It runs on a worker goroutine.
	Run func(ctx context.Context) (*pixel.Buffer, error)
	// Done receives the outcome on the same worker after Run returns.
	// buf is nil whenever err is non-nil.
	Done func(buf *pixel.Buffer, err error)
}

// Status contains current status of the queue.
type Status struct {
	// Active is the number of jobs currently running
	Active int `json:"active"`
	// Queued is the number of jobs waiting for a worker
	Queued int `json:"queued"`
	// Completed is the total number of successful jobs since start
	Completed int64 `json:"completed"`
	// Failed is the total number of failed jobs since start
	Failed int64 `json:"failed"`
	// Bytes is the total size of decoded pixel data since start
	Bytes int64 `json:"bytes"`
	// Current lists the names of running jobs
	Current []string `json:"current"`
}

// Config configures the queue.
type Config struct {
	// Workers is the number of concurrent decode workers (default: 2)
	Workers int
	// QueueSize is the maximum number of pending jobs (default: 64)
	QueueSize int
	// Logger for load operations
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 64,
		Logger:    slog.Default(),
	}
}

// Queue hands jobs to a fixed pool of workers.
type Queue struct {
	jobs      chan Job
	cfg       Config
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// guards jobs against send-after-close
	mu      sync.RWMutex
	stopped bool

	active    atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	seq       atomic.Uint64
	current   sync.Map // run sequence number -> job name
}

// New creates a queue. Call Start before submitting.
func New(cfg Config) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:   make(chan Job, cfg.QueueSize),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.cfg.Logger.Info("starting loader workers", "workers", q.cfg.Workers)
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(i)
		}
	})
}

// Stop refuses new jobs, lets queued and in-flight jobs finish, and waits
// for the workers to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.jobs)
		q.mu.Unlock()

		q.Start() // drain even if never started
		q.wg.Wait()
		q.cancel()
	})
}

// Submit enqueues a job and returns immediately.
func (q *Queue) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("loader: job %q has no Run func", job.Name)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Status returns the current status of the queue.
func (q *Queue) Status() Status {
	var current []string
	q.current.Range(func(_, name any) bool {
		current = append(current, name.(string))
		return true
	})
	sort.Strings(current)

	return Status{
		Active:    int(q.active.Load()),
		Queued:    len(q.jobs),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Bytes:     q.bytes.Load(),
		Current:   current,
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.cfg.Logger.With("worker_id", id)
	log.Debug("loader worker started")

	for job := range q.jobs {
		q.run(log, job)
	}
	log.Debug("loader worker channel closed")
}

func (q *Queue) run(log *slog.Logger, job Job) {
	key := q.seq.Add(1)
	q.active.Add(1)
	q.current.Store(key, job.Name)
	defer func() {
		q.current.Delete(key)
		q.active.Add(-1)
	}()

	start := time.Now()
	log = log.With("job", job.Name)

	buf, err := runJob(q.ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		q.failed.Add(1)
		log.Error("load failed", "error", err, "duration_ms", elapsed.Milliseconds())
		buf = nil
	} else {
		q.completed.Add(1)
		q.bytes.Add(int64(buf.SizeBytes()))
		log.Info("load completed",
			"duration_ms", elapsed.Milliseconds(),
			"width", buf.Width(),
			"height", buf.Height(),
			"channels", buf.Channels(),
		)
	}

	if job.Done != nil {
		job.Done(buf, err)
	}
}

// runJob calls job.Run, turning a panic into an error so one bad job
// cannot take the worker down.
func runJob(ctx context.Context, job Job) (buf *pixel.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("loader: job %q panicked: %v", job.Name, r)
		}
	}()

	buf, err = job.Run(ctx)
	if err == nil && buf == nil {
		err = fmt.Errorf("loader: job %q returned no buffer", job.Name)
	}
	return buf, err
}
