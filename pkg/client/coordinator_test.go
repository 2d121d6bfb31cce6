// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorStateTransitions(t *testing.T) {
	c := NewCoordinator()
	require.False(t, c.IsRefreshing())
	require.Equal(t, Idle, c.State())

	require.NoError(t, c.BeginRefresh())
	require.True(t, c.IsRefreshing())
	require.ErrorIs(t, c.BeginRefresh(), ErrRefreshInFlight)

	c.Settle("token", nil)
	require.Equal(t, Idle, c.State())
	require.NoError(t, c.BeginRefresh())
}

func TestCoordinatorEnqueueRequiresOpenRound(t *testing.T) {
	c := NewCoordinator()
	require.ErrorIs(t, c.Enqueue(NewWaiter()), ErrNotRefreshing)
	require.Equal(t, 0, c.Pending())

	require.NoError(t, c.BeginRefresh())
	require.NoError(t, c.Enqueue(NewWaiter()))
	require.Equal(t, 1, c.Pending())
}

func TestCoordinatorSettleResolvesInOrder(t *testing.T) {
	c := NewCoordinator()
	require.NoError(t, c.BeginRefresh())

	waiters := []*Waiter{NewWaiter(), NewWaiter(), NewWaiter()}
	for _, w := range waiters {
		require.NoError(t, c.Enqueue(w))
	}

	n := c.Settle("T2", nil)
	require.Equal(t, 3, n)
	require.Equal(t, 0, c.Pending())
	require.Equal(t, Idle, c.State())

	for i, w := range waiters {
		require.Equal(t, Resolved, w.State(), "waiter %d", i)
		token, err := w.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, "T2", token)
	}
}

func TestCoordinatorSettleRejectsAll(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("boom")

	_, leader := c.Join()
	require.True(t, leader)
	w1, leader := c.Join()
	require.False(t, leader)
	w2, leader := c.Join()
	require.False(t, leader)

	require.Equal(t, 2, c.Settle("", boom))
	for _, w := range []*Waiter{w1, w2} {
		require.Equal(t, Rejected, w.State())
		_, err := w.Wait(context.Background())
		require.ErrorIs(t, err, boom)
	}
	require.False(t, c.IsRefreshing())
}

func TestWaiterSettledExactlyOnce(t *testing.T) {
	w := NewWaiter()
	require.True(t, w.settle(Resolved, "first", nil))
	require.False(t, w.settle(Rejected, "", errors.New("late")))

	token, err := w.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", token)
}

func TestWaiterWaitHonoursContext(t *testing.T) {
	w := NewWaiter()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, Pending, w.State())
}

func TestCoordinatorJoinSingleLeader(t *testing.T) {
	c := NewCoordinator()
	const n = 32

	var (
		mu      sync.Mutex
		leaders int
		waiters []*Waiter
		wg      sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			w, leader := c.Join()
			mu.Lock()
			defer mu.Unlock()
			if leader {
				leaders++
				return
			}
			waiters = append(waiters, w)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, leaders)
	require.Equal(t, n-1, c.Pending())
	require.Equal(t, n-1, c.Settle("T", nil))
	for _, w := range waiters {
		assert.Equal(t, Resolved, w.State())
	}
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "Refreshing", Refreshing.String())
	assert.Equal(t, "Pending", Pending.String())
	assert.Equal(t, "Resolved", Resolved.String())
	assert.Equal(t, "Rejected", Rejected.String())
}
