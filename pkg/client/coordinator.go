// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"

	"github.com/telekom/reauth/pkg/metrics"
)

var (
	ErrNotRefreshing   = errors.New("no refresh in flight")
	ErrRefreshInFlight = errors.New("refresh already in flight")
)

type RefreshState int

const (
	Idle RefreshState = iota
	Refreshing
)

func (s RefreshState) String() string {
	if s == Refreshing {
		return "Refreshing"
	}
	return "Idle"
}

type WaiterState int

const (
	Pending WaiterState = iota
	Resolved
	Rejected
)

func (s WaiterState) String() string {
	switch s {
	case Resolved:
		return "Resolved"
	case Rejected:
		return "Rejected"
	default:
		return "Pending"
	}
}

// Waiter is one caller suspended on the outcome of an in-flight refresh.
// Its fields are written once, under the coordinator lock, before done is
// closed; readers only look at them after done is closed.
type Waiter struct {
	state WaiterState
	token string
	err   error
	done  chan struct{}
}

func NewWaiter() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

// Done is closed once the waiter has been resolved or rejected.
func (w *Waiter) Done() <-chan struct{} { return w.done }

func (w *Waiter) State() WaiterState {
	select {
	case <-w.done:
		return w.state
	default:
		return Pending
	}
}

// Wait blocks until the waiter is settled or ctx is done. A caller that
// gives up early leaves the waiter queued; the round still settles it.
func (w *Waiter) Wait(ctx context.Context) (string, error) {
	select {
	case <-w.done:
		if w.state == Rejected {
			return "", w.err
		}
		return w.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *Waiter) settle(state WaiterState, token string, err error) bool {
	if w.state != Pending {
		return false
	}
	w.state, w.token, w.err = state, token, err
	close(w.done)
	return true
}

// Coordinator guarantees at most one credential refresh in flight and
// fans its outcome out to every caller that hit a 401 meanwhile.
type Coordinator struct {
	mu    sync.Mutex
	state RefreshState
	queue []*Waiter
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

func (c *Coordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Refreshing
}

func (c *Coordinator) State() RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of queued waiters.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Enqueue appends w to the queue of the current round. It fails with
// ErrNotRefreshing when no round is open, so a waiter can never be added
// after Settle drained the queue.
func (c *Coordinator) Enqueue(w *Waiter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Refreshing {
		return ErrNotRefreshing
	}
	c.queue = append(c.queue, w)
	metrics.RefreshWaiters.Set(float64(len(c.queue)))
	return nil
}

// BeginRefresh opens a round. It fails with ErrRefreshInFlight when one is
// already open.
func (c *Coordinator) BeginRefresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Refreshing {
		return ErrRefreshInFlight
	}
	c.state = Refreshing
	return nil
}

// Join is the check-then-act step of a 401: with the lock held it either
// queues a new waiter on the open round or opens a round for the caller,
// who then owns the refresh and must call Settle.
func (c *Coordinator) Join() (*Waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Refreshing {
		w := NewWaiter()
		c.queue = append(c.queue, w)
		metrics.RefreshWaiters.Set(float64(len(c.queue)))
		return w, false
	}
	c.state = Refreshing
	return nil, true
}

// Settle closes the round: every queued waiter is resolved with token, or
// rejected with err when err is non-nil, in enqueue order. The queue is
// emptied and the state returns to Idle before the lock is released.
// It returns the number of waiters settled.
func (c *Coordinator) Settle(token string, err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.queue {
		var ok bool
		if err != nil {
			ok = w.settle(Rejected, "", err)
		} else {
			ok = w.settle(Resolved, token, nil)
		}
		if ok {
			n++
		}
	}
	c.queue = nil
	c.state = Idle
	metrics.RefreshWaiters.Set(0)
	return n
}
