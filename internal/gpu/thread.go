package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrThreadStopped is returned when work is sent to a stopped Thread.
	ErrThreadStopped = errors.New("gpu: graphics thread stopped")

	// ErrTaskPanicked is returned by Do when the function panicked.
	ErrTaskPanicked = errors.New("gpu: graphics task panicked")
)

// Thread is the goroutine that owns the graphics context. It is locked to
// its OS thread for its whole life, and runs submitted functions one at a
// time in submission order.
//
// Current reports whether the caller is the graphics thread itself; Device
// implementations use it to reject calls made from elsewhere. Calling Do
// from the graphics thread runs the function inline.
type Thread struct {
	tasks    chan func()
	done     chan struct{}
	log      *slog.Logger
	stopOnce sync.Once

	mu      sync.RWMutex
	stopped bool

	// id of the locked OS thread while the loop runs, 0 otherwise
	id atomic.Int64
}

// NewThread starts a graphics thread. A nil logger means slog.Default().
func NewThread(logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Thread{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
		log:   logger,
	}
	go t.loop()
	return t
}

func (t *Thread) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	t.id.Store(threadID())
	defer t.id.Store(0)
	defer close(t.done)

	t.log.Debug("graphics thread started")
	for fn := range t.tasks {
		t.run(fn)
	}
	t.log.Debug("graphics thread stopped")
}

func (t *Thread) run(fn func()) {
	_ = t.call(fn)
}

// call runs fn, turning a panic into ErrTaskPanicked.
func (t *Thread) call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("graphics task panicked", "panic", fmt.Sprint(r))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	fn()
	return nil
}

// Current reports whether the caller is running on the graphics thread.
func (t *Thread) Current() bool {
	id := t.id.Load()
	return id != 0 && id == threadID()
}

// Do runs fn on the graphics thread and waits for it to return. It fails
// with ErrTaskPanicked when fn panics.
func (t *Thread) Do(fn func()) error {
	if t.Current() {
		return t.call(fn)
	}

	finished := make(chan error, 1)
	if err := t.Post(func() {
		finished <- t.call(fn)
	}); err != nil {
		return err
	}
	return <-finished
}

// Post queues fn on the graphics thread and returns immediately.
func (t *Thread) Post(fn func()) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stopped {
		return ErrThreadStopped
	}
	t.tasks <- fn
	return nil
}

// Stop runs everything already queued, then ends the thread.
func (t *Thread) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		close(t.tasks)
		t.mu.Unlock()
		<-t.done
	})
}
