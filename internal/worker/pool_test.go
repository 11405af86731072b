package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muraty261/GlistEngine/internal/codec"
	"github.com/muraty261/GlistEngine/internal/pixel"
)

// mockDecoder simulates image decoding for testing
type mockDecoder struct {
	delay     time.Duration
	failPaths map[string]bool // paths that should fail
	callCount atomic.Int32
}

func (m *mockDecoder) DecodeFile(path string, opts codec.Options) (*pixel.Buffer, error) {
	m.callCount.Add(1)
	time.Sleep(m.delay)

	if m.failPaths != nil && m.failPaths[path] {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, codec.ErrCorrupt)
	}
	return pixel.Alloc(4, 2, 4, opts.Format)
}

func imageTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		name := fmt.Sprintf("img%d.png", i)
		tasks[i] = Task{Name: name, Path: "/assets/images/" + name}
	}
	return tasks
}

func TestPool_BasicExecution(t *testing.T) {
	dec := &mockDecoder{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers: 2,
		Decoder: dec,
	})

	tasks := imageTasks(3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Name, r.Err)
		}
		if r.Buffer == nil || r.Buffer.Width() != 4 {
			t.Errorf("Expected 4px wide buffer for %s", r.Task.Name)
		}
	}

	if dec.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d decoder calls, got %d", len(tasks), dec.callCount.Load())
	}
}

func TestPool_PassesOptions(t *testing.T) {
	pool := New(Config{Workers: 1, Decoder: &mockDecoder{}})

	results := pool.Run(context.Background(), []Task{
		{Name: "sky.hdr", Path: "/assets/images/sky.hdr", Options: codec.Options{Format: pixel.FloatHDR}},
	})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Buffer.Format() != pixel.FloatHDR {
		t.Errorf("Expected HDR buffer, got %s", results[0].Buffer.Format())
	}
}

func TestPool_Parallelism(t *testing.T) {
	dec := &mockDecoder{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers: 4,
		Decoder: dec,
	})

	tasks := imageTasks(8)

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// 4 workers, 8 tasks at 50ms: ~100ms in two batches
	maxExpected := 200 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	tasks := imageTasks(3)
	failPath := tasks[1].Path
	dec := &mockDecoder{
		delay:     10 * time.Millisecond,
		failPaths: map[string]bool{failPath: true},
	}

	pool := New(Config{
		Workers: 2,
		Decoder: dec,
	})

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Path != failPath {
				t.Errorf("Unexpected failure for %s", r.Task.Name)
			}
			if !errors.Is(r.Err, codec.ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", r.Err)
			}
			if r.Buffer != nil {
				t.Error("Expected nil buffer on failure")
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	dec := &mockDecoder{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers: 2,
		Decoder: dec,
	})

	tasks := imageTasks(10)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	// The two in-flight decodes finish, the rest are skipped.
	if elapsed > 250*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected a result for every task, got %d", len(results))
	}

	var cancelledCount int
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}
	if cancelledCount == 0 {
		t.Error("Expected some cancelled results")
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	dec := &mockDecoder{delay: 10 * time.Millisecond}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers: 2,
		Decoder: dec,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := imageTasks(3)
	pool.Run(context.Background(), tasks)

	if progressCalls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d progress callbacks, got %d", len(tasks), progressCalls.Load())
	}
	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	dec := &mockDecoder{}

	pool := New(Config{
		Workers: 2,
		Decoder: dec,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if dec.callCount.Load() != 0 {
		t.Errorf("Expected 0 decoder calls for empty tasks, got %d", dec.callCount.Load())
	}
}
