// Package taskstate provides the state machine governing a cancellable
// background task.
//
// Transitions:
//
//	Idle -> Running
//	Running -> StopRequested | Completed | Killed
//	StopRequested -> Completed | Killed
//	Completed | Killed -> Running (restart)
//
// The status lives in an atomic so tasks can poll StopRequested cheaply;
// waiters block on a condition variable until a terminal state.
package taskstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is a task status.
type State uint32

const (
	Idle State = iota
	Running
	StopRequested
	Completed
	Killed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case StopRequested:
		return "stop-requested"
	case Completed:
		return "completed"
	case Killed:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Terminal reports whether s is Completed or Killed.
func (s State) Terminal() bool { return s == Completed || s == Killed }

// ErrBusy is returned by Start while a task is active.
var ErrBusy = errors.New("task already running")

// Controller owns one task's state.
type Controller struct {
	state atomic.Uint32

	mu   sync.Mutex
	cond *sync.Cond
	err  error
}

// New returns an idle controller.
func New() *Controller {
	c := &Controller{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// IsTerminal reports whether the task has finished (or never started).
func (c *Controller) IsTerminal() bool {
	s := c.State()
	return s == Idle || s.Terminal()
}

// Start moves an idle or finished controller to Running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.State()
	if s == Running || s == StopRequested {
		return ErrBusy
	}
	c.err = nil
	c.state.Store(uint32(Running))
	return nil
}

// RequestStop asks a running task to stop. It returns false if no task is running.
func (c *Controller) RequestStop() bool {
	return c.state.CompareAndSwap(uint32(Running), uint32(StopRequested))
}

// StopRequested reports whether the task should stop at its next check.
func (c *Controller) StopRequested() bool {
	return c.State() == StopRequested
}

// Finish records the task outcome: Completed for a nil err, Killed otherwise.
func (c *Controller) Finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.State()
	if s != Running && s != StopRequested {
		return
	}
	next := Completed
	if err != nil {
		next = Killed
	}
	c.err = err
	c.state.Store(uint32(next))
	c.cond.Broadcast()
}

// Err returns the error passed to the last Finish.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WaitUntilTerminal blocks until the task is not running or ctx is done,
// returning the task error or ctx.Err().
func (c *Controller) WaitUntilTerminal(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return c.err
}
