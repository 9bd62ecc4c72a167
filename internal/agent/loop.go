package agent

import (
	"context"
	"sync"
	"time"

	"arbagent/internal/logger"
)

// Loop schedules cycles at a fixed interval. It never terminates on a failed
// cycle: the failure is recorded in the agent state and the loop retries
// after a short backoff.
type Loop struct {
	orch     *Orchestrator
	interval time.Duration
	backoff  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a loop controller. interval and backoff zero values fall
// back to 30s and 5s.
func NewLoop(orch *Orchestrator, interval, backoff time.Duration) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Loop{orch: orch, interval: interval, backoff: backoff}
}

// Start launches the loop goroutine. Calling Start while the loop is running
// is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		logger.Debug("loop already running, start ignored")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.orch.state.setRunning(true)
	logger.Info("agent loop started, interval %v", l.interval)
	go l.run(ctx, l.done)
}

// Stop cancels the loop and waits for any in-flight cycle to finish.
// Calling Stop while the loop is stopped is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	cancel()
	<-done
	l.orch.state.setRunning(false)
	logger.Info("agent loop stopped")
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := l.interval
		if err := l.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.orch.state.appendErrors("cycle failed: " + err.Error())
			logger.Error("cycle failed, retrying in %v: %v", l.backoff, err)
			wait = l.backoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runOnce isolates a single cycle so a panic during the cycle takes down
// the cycle, not the loop. Collaborator panics never reach here, the
// orchestrator turns those into degradations per call.
func (l *Loop) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	_, err = l.orch.RunCycle(ctx)
	return err
}

type panicError struct{ value any }

func (e *panicError) Error() string {
	return "cycle panic: " + formatPanic(e.value)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unexpected panic value"
}
