// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package testutil provides backends and forms for testing subround
// rounds.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/local"
	"github.com/grailbio/subround/value"
)

// Call records a single invocation accepted by a Backend.
type Call struct {
	// Comp is the ID of the invoked computation.
	Comp string
	// Arg is the invocation's argument.
	Arg value.V
}

// Backend is an instrumented backend that runs *local.Func
// computations. It records its calls and the maximum number of
// invocations it has run concurrently. Delays and failures may be
// injected.
type Backend struct {
	// Name is the backend's name.
	Name string
	// Delay, if non-nil, returns how long an invocation should wait
	// before running. The wait is interrupted by context cancellation.
	Delay func(comp string, arg value.V) time.Duration
	// Fail, if non-nil, returns an error with which to fail an
	// invocation instead of running it.
	Fail func(comp string, arg value.V) error

	mu             sync.Mutex
	calls          []Call
	active, maxact int
}

// NewBackends returns n instrumented backends, named "test0",
// "test1", and so on.
func NewBackends(n int) []*Backend {
	backends := make([]*Backend, n)
	for i := range backends {
		backends[i] = &Backend{Name: fmt.Sprintf("test%d", i)}
	}
	return backends
}

// Backends returns the provided backends as a slice of
// subround.Backend.
func Backends(backends []*Backend) []subround.Backend {
	bs := make([]subround.Backend, len(backends))
	for i, b := range backends {
		bs[i] = b
	}
	return bs
}

// Invoke implements subround.Backend.
func (b *Backend) Invoke(ctx context.Context, comp subround.Computation, arg value.V) (value.V, error) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{comp.ID(), arg})
	b.active++
	if b.active > b.maxact {
		b.maxact = b.active
	}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}()

	if b.Delay != nil {
		if d := b.Delay(comp.ID(), arg); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, errors.E("invoke", b.Name, comp.ID(), ctx.Err())
			}
		}
	}
	if b.Fail != nil {
		if err := b.Fail(comp.ID(), arg); err != nil {
			return nil, errors.E("invoke", b.Name, comp.ID(), err)
		}
	}
	f, ok := comp.(*local.Func)
	if !ok {
		return nil, errors.E("invoke", b.Name, comp.ID(), errors.NotSupported)
	}
	return f.Fn(ctx, arg)
}

// Calls returns the invocations accepted by the backend, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsTo returns the number of invocations of the computation
// with the given ID.
func (b *Backend) CallsTo(comp string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for _, c := range b.calls {
		if c.Comp == comp {
			n++
		}
	}
	return n
}

// MaxConcurrency returns the maximum number of invocations the
// backend ran concurrently.
func (b *Backend) MaxConcurrency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxact
}

func (b *Backend) String() string { return b.Name }

// TotalCalls returns the number of invocations of the computation
// with the given ID across backends.
func TotalCalls(backends []*Backend, comp string) int {
	var n int
	for _, b := range backends {
		n += b.CallsTo(comp)
	}
	return n
}
