// Package scratch provides a fixed-size arena of per-query scratch slots.
//
// Slots are allocated once at construction and handed out by index through a
// bounded channel. Acquire blocks while every slot is leased; a Lease must
// be released on every exit path, typically with defer.
package scratch

import (
	"context"
	"sync/atomic"
)

// Pool is an arena of n slots of type T.
type Pool[T any] struct {
	slots []T
	free  chan int
}

// New allocates n slots (minimum 1), initializing slot i with init(i).
func New[T any](n int, init func(slot int) T) *Pool[T] {
	n = max(n, 1)
	p := &Pool[T]{
		slots: make([]T, n),
		free:  make(chan int, n),
	}
	for i := range p.slots {
		p.slots[i] = init(i)
		p.free <- i
	}
	return p
}

// Size returns the number of slots.
func (p *Pool[T]) Size() int { return len(p.slots) }

// Acquire leases a slot, blocking until one is free or ctx is done.
func (p *Pool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	select {
	case i := <-p.free:
		return &Lease[T]{pool: p, slot: i}, nil
	default:
	}
	select {
	case i := <-p.free:
		return &Lease[T]{pool: p, slot: i}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lease is exclusive access to one slot.
type Lease[T any] struct {
	pool     *Pool[T]
	slot     int
	released atomic.Bool
}

// Value returns the leased slot. It must not be used after Release.
func (l *Lease[T]) Value() *T { return &l.pool.slots[l.slot] }

// Release returns the slot to the pool. Extra calls are no-ops.
func (l *Lease[T]) Release() {
	if l == nil || l.released.Swap(true) {
		return
	}
	l.pool.free <- l.slot
}
