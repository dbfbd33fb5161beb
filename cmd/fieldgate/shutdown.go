package main

import (
	"sync"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/logging"
)

// defaultGrace bounds cleanup when no positive grace is given.
const defaultGrace = 333 * time.Millisecond

type cleanupStep struct {
	name string
	fn   func() error
}

// cleanupList collects shutdown steps as components start and runs them
// once, newest first.
type cleanupList struct {
	mu    sync.Mutex
	steps []cleanupStep
	once  sync.Once
	done  chan struct{}
}

func newCleanupList() *cleanupList {
	return &cleanupList{done: make(chan struct{})}
}

// add registers a step. Steps added after run has started are ignored.
func (c *cleanupList) add(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

// run starts the cleanup on the first call and waits at most grace for it
// to finish; a grace of zero or less means defaultGrace. It reports whether
// every step completed in time. Later calls only wait.
func (c *cleanupList) run(log *logging.Logger, grace time.Duration) bool {
	c.once.Do(func() {
		c.mu.Lock()
		steps := c.steps
		c.steps = nil
		c.mu.Unlock()

		go func() {
			defer close(c.done)
			for i := len(steps) - 1; i >= 0; i-- {
				step := steps[i]
				if err := step.fn(); err != nil {
					log.Error("cleanup failed", "step", step.name, "error", err)
					continue
				}
				log.Debug("cleanup done", "step", step.name)
			}
		}()
	})

	if grace <= 0 {
		grace = defaultGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}
