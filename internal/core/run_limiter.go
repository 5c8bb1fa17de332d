package core

// run_limiter.go bounds how many runs an orchestrator executes at once.
//
// Replace writes assume no other writer touches their tables during a run,
// so a Service allows a single active run by default. Callers that cannot
// get a slot within maxWait receive ErrRunInProgress.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when every run slot stays occupied for the
// whole wait.
var ErrRunInProgress = errors.New("run already in progress, please try again later")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 1

// DefaultRunWait is how long to wait for a slot before rejecting.
const DefaultRunWait = 5 * time.Second

// RunLimiter is a semaphore over run slots.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRunLimiter creates a limiter with maxConcurrent slots.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultRunWait
	}

	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrRunInProgress
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of runs holding a slot.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no run holds a slot or ctx ends. Used on shutdown.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return RunLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
