// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package lifecycle has helpers for tracking the completion lifecycle of
// concurrent work, used by the wave scheduler to observe when every segment
// in a wave has settled.
package lifecycle

import (
	"sync"

	"iter"

	"github.com/desargues/desargues/internal/collections"
)

// CompletionTracker is a synchronization utility that keeps a record of the
// completion of various items and allows different goroutines to wait for
// the completion of different subsets of the items.
//
// "Items" can be of any comparable type; the design intention is that a
// caller defines its own types to represent the kinds of work it tracks.
type CompletionTracker[T comparable] struct {
	mu        sync.Mutex
	completed collections.Set[T]
	waiters   collections.Set[*completionWaiter[T]]
}

type completionWaiter[T comparable] struct {
	pending collections.Set[T]
	ch      chan<- struct{}
}

// NewCompletionTracker returns a new [CompletionTracker] that initially has
// no waiters and no completed items.
func NewCompletionTracker[T comparable]() *CompletionTracker[T] {
	return &CompletionTracker[T]{
		completed: collections.NewSet[T](),
		waiters:   collections.NewSet[*completionWaiter[T]](),
	}
}

// ItemComplete returns true if the given item has already been reported as
// complete using [CompletionTracker.ReportCompletion].
//
// A complete item can never become incomplete again, but if this function
// returns false then a concurrent goroutine could potentially report the
// item as complete before the caller acts on that result.
func (t *CompletionTracker[T]) ItemComplete(item T) bool {
	t.mu.Lock()
	ret := t.completed.Has(item)
	t.mu.Unlock()
	return ret
}

// NewWaiterFor returns an unbuffered channel that will be closed once every
// item in the given sequence has had its completion reported using
// [CompletionTracker.ReportCompletion]. No items are sent to the channel.
//
// Callers that would just immediately block on the channel should use the
// simpler [CompletionTracker.WaitFor] instead.
func (t *CompletionTracker[T]) NewWaiterFor(waitFor iter.Seq[T]) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan struct{})
	waiter := &completionWaiter[T]{
		pending: collections.NewSet[T](),
		ch:      ch,
	}
	for item := range waitFor {
		if t.completed.Has(item) {
			continue // ignore any already-completed items
		}
		waiter.pending.Add(item)
	}

	if len(waiter.pending) == 0 {
		// Nothing left to wait for, so close the channel immediately and
		// don't track the waiter at all.
		close(ch)
		return ch
	}

	t.waiters.Add(waiter)
	return ch
}

// WaitFor blocks until every item in the given sequence has had its
// completion reported using [CompletionTracker.ReportCompletion].
func (t *CompletionTracker[T]) WaitFor(waitFor iter.Seq[T]) {
	ch := t.NewWaiterFor(waitFor)
	for range ch {
		// just block until the channel is closed
	}
}

// ReportCompletion records the completion of the given item and signals any
// waiters for which it was the last remaining pending item.
func (t *CompletionTracker[T]) ReportCompletion(of T) {
	t.mu.Lock()
	t.completed.Add(of)
	for waiter := range t.waiters {
		waiter.pending.Remove(of)
		if len(waiter.pending) == 0 {
			close(waiter.ch)
			t.waiters.Remove(waiter)
		}
	}
	t.mu.Unlock()
}
