package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidInterval is returned for a loop interval below one second.
	ErrInvalidInterval = errors.New("loop_interval must be an integer >= 1")

	// ErrStopFailed is returned when a worker ignores both the stop flag and
	// context cancellation and has to be abandoned.
	ErrStopFailed = errors.New("worker did not stop")
)

const (
	defaultStep        = time.Second
	defaultJoinTimeout = 5 * time.Second
)

// Loop runs an update function once per interval in its own goroutine.
//
// Between updates the worker sleeps in one-second steps and checks the stop
// flag at each step, so stopping never waits for a full interval.
type Loop struct {
	name     string
	interval int
	update   func(ctx context.Context)
	log      *zap.Logger

	step        time.Duration
	joinTimeout time.Duration

	mu sync.Mutex
	w  *worker
}

type worker struct {
	stop   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop validates interval (whole seconds) and returns a stopped Loop.
func NewLoop(name string, interval int, update func(ctx context.Context), log *zap.Logger) (*Loop, error) {
	if interval < 1 {
		return nil, fmt.Errorf("%s: %w (got %d)", name, ErrInvalidInterval, interval)
	}
	return &Loop{
		name:        name,
		interval:    interval,
		update:      update,
		log:         log,
		step:        defaultStep,
		joinTimeout: defaultJoinTimeout,
	}, nil
}

// Interval returns the configured interval.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval) * time.Second
}

// Running reports whether a worker is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w != nil
}

// Start launches the worker. Starting a running loop logs a warning and does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w != nil {
		l.log.Warn("already running", zap.String("loop", l.name))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	l.w = w
	go l.run(ctx, w)
}

// Stop asks the worker to exit and waits for it.
//
// Escalation: the stop flag is set and the worker gets joinTimeout to exit;
// then its context is cancelled (terminate) and it gets another joinTimeout;
// finally it is abandoned (kill). A cancelled worker can no longer apply
// decisions, but its goroutine may leak, so Stop then returns ErrStopFailed.
// Stopping a stopped loop logs a warning and returns nil.
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.w
	if w == nil {
		l.log.Warn("not running", zap.String("loop", l.name))
		return nil
	}
	l.w = nil

	close(w.stop)
	if waitDone(w.done, l.joinTimeout) {
		w.cancel()
		return nil
	}

	l.log.Warn("worker did not stop in time, terminating",
		zap.String("loop", l.name), zap.Duration("timeout", l.joinTimeout))
	w.cancel()
	if waitDone(w.done, l.joinTimeout) {
		return nil
	}

	l.log.Error("worker did not terminate, abandoning", zap.String("loop", l.name))
	return fmt.Errorf("%s: %w", l.name, ErrStopFailed)
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

func (l *Loop) run(ctx context.Context, w *worker) {
	defer close(w.done)
	l.log.Info("starting", zap.String("loop", l.name), zap.Int("interval_s", l.interval))
	defer l.log.Info("stopped", zap.String("loop", l.name))

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		l.update(ctx)

		for i := 0; i < l.interval; i++ {
			if !l.sleepStep(w.stop) {
				return
			}
		}
	}
}

// sleepStep sleeps one step, returning false if stop was requested.
func (l *Loop) sleepStep(stop <-chan struct{}) bool {
	t := time.NewTimer(l.step)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
