// Package worker provides a parallel image decoding worker pool.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// Decoder is the interface for image decoding.
// This matches the signature of codec.Decoder.DecodeFile.
type Decoder interface {
	DecodeFile(path string, opts codec.Options) (*pixel.Buffer, error)
}

// Task represents a single image to decode.
type Task struct {
	// Name is the caller's key for the image (e.g. its project name).
	Name    string
	Path    string
	Options codec.Options
}

// Result represents the outcome of a decode task.
type Result struct {
	Buffer  *pixel.Buffer
	Err     error
	Task    Task
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Decoder    Decoder
	OnProgress ProgressFunc
	Workers    int
}

// Pool manages parallel image decoding.
type Pool struct {
	decoder    Decoder
	onProgress ProgressFunc
	workers    int
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		decoder:    cfg.Decoder,
		onProgress: cfg.OnProgress,
	}
}

// Run decodes all tasks and returns one result per task, in completion order.
// It blocks until every task has finished or been cancelled; tasks not yet
// started when ctx is cancelled come back with ctx.Err().
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	// The channel holds every task, so feeding never blocks.
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		var completed, failed int
		for result := range resultCh {
			results = append(results, result)

			completed++
			if result.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{Task: task, Err: err}
			continue
		}

		start := time.Now()
		buf, err := p.decoder.DecodeFile(task.Path, task.Options)

		results <- Result{
			Task:    task,
			Buffer:  buf,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
