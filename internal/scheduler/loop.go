// Package scheduler provides the cooperative event loop components render
// on and the per-component render state machine.
//
// A Loop has three queues. Tasks run first, then animation-frame callbacks,
// then idle callbacks. All callbacks run on the goroutine driving the loop
// (Run, Tick or Flush), so component state never needs its own locking.
// Enqueueing is safe from any goroutine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
)

// Handle identifies a queued callback for Cancel.
type Handle uint64

// Config configures a Loop.
type Config struct {
	// FrameInterval is the delay between animation frames in Run.
	FrameInterval time.Duration
	// IdleDelay is how long after a frame idle callbacks run.
	IdleDelay time.Duration
	Logger    logging.Logger
}

type callback struct {
	id Handle
	fn func()
}

// Loop is a single-goroutine cooperative scheduler.
type Loop struct {
	mu        sync.Mutex
	nextID    Handle
	tasks     []callback
	frames    []callback
	idles     []callback
	live      map[Handle]bool
	cancelled map[Handle]bool

	frameInterval time.Duration
	idleDelay     time.Duration
	logger        logging.Logger
	wake          chan struct{}
}

// NewLoop creates a Loop. Zero durations fall back to 16ms frames and a
// 1ms idle delay.
func NewLoop(cfg Config) *Loop {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Loop{
		live:          make(map[Handle]bool),
		cancelled:     make(map[Handle]bool),
		frameInterval: cfg.FrameInterval,
		idleDelay:     cfg.IdleDelay,
		logger:        cfg.Logger.WithComponent("scheduler"),
		wake:          make(chan struct{}, 1),
	}
}

func (l *Loop) push(queue *[]callback, fn func()) Handle {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.live[id] = true
	*queue = append(*queue, callback{id: id, fn: fn})
	l.mu.Unlock()
	return id
}

// Post queues fn to run on the loop at the start of the next turn.
func (l *Loop) Post(fn func()) Handle {
	id := l.push(&l.tasks, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return id
}

// RequestAnimationFrame queues fn for the next frame.
func (l *Loop) RequestAnimationFrame(fn func()) Handle {
	return l.push(&l.frames, fn)
}

// RequestIdleCallback queues fn for the next idle period.
func (l *Loop) RequestIdleCallback(fn func()) Handle {
	return l.push(&l.idles, fn)
}

// Cancel prevents a queued callback from running. It reports whether the
// callback was still waiting to run.
func (l *Loop) Cancel(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.live[h] || l.cancelled[h] {
		return false
	}
	l.cancelled[h] = true
	return true
}

// Pending returns the number of callbacks still waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live) - len(l.cancelled)
}

// take removes the current contents of a queue. Callbacks queued while the
// batch runs wait for the next turn.
func (l *Loop) take(queue *[]callback) []callback {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := *queue
	*queue = nil
	return batch
}

func (l *Loop) run(batch []callback) int {
	ran := 0
	for _, cb := range batch {
		l.mu.Lock()
		skip := l.cancelled[cb.id]
		delete(l.cancelled, cb.id)
		delete(l.live, cb.id)
		l.mu.Unlock()
		if skip {
			continue
		}
		l.safely(cb.fn)
		ran++
	}
	return ran
}

func (l *Loop) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := kerrors.NewInternalError(fmt.Sprintf("scheduled callback panicked: %v", r), nil)
			l.logger.Error(context.Background(), err, "Recovered from panic in scheduled callback")
		}
	}()
	fn()
}

// RunTasks runs posted tasks.
func (l *Loop) RunTasks() int { return l.run(l.take(&l.tasks)) }

// RunFrame runs posted tasks and then the frame callbacks queued so far.
func (l *Loop) RunFrame() int {
	return l.RunTasks() + l.run(l.take(&l.frames))
}

// RunIdle runs the idle callbacks queued so far.
func (l *Loop) RunIdle() int { return l.run(l.take(&l.idles)) }

// Tick runs one frame followed by one idle period.
func (l *Loop) Tick() int {
	return l.RunFrame() + l.RunIdle()
}

// Flush ticks until every queue is empty or maxTurns is reached. It returns
// the number of callbacks run.
func (l *Loop) Flush(maxTurns int) int {
	total := 0
	for i := 0; i < maxTurns && l.Pending() > 0; i++ {
		total += l.Tick()
	}
	return total
}

// Run drives the loop until ctx is done. Posted tasks run as soon as they
// arrive, frames on every FrameInterval, and idle callbacks IdleDelay after
// a frame.
func (l *Loop) Run(ctx context.Context) error {
	frames := time.NewTicker(l.frameInterval)
	defer frames.Stop()

	idle := time.NewTimer(l.idleDelay)
	if !idle.Stop() {
		<-idle.C
	}
	idleArmed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.RunTasks()
		case <-frames.C:
			l.RunFrame()
			if !idleArmed && l.hasIdle() {
				idle.Reset(l.idleDelay)
				idleArmed = true
			}
		case <-idle.C:
			idleArmed = false
			l.RunIdle()
		}
	}
}

func (l *Loop) hasIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.idles) > 0
}

// Do runs fn on the loop and waits for it to finish. The loop must be
// running.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
