// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package local implements an in-process backend. Computations run by
// a local backend are ordinary Go functions (see Func); a pool of
// local backends may share a limiter that bounds the number of
// functions evaluating concurrently in the process.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/log"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

// Func is a computation implemented by a Go function.
type Func struct {
	// Name identifies the computation.
	Name string
	// Sig is the computation's declared signature.
	Sig shape.Func
	// Graph lists the operations performed by the function, if known.
	Graph []subround.Op
	// Fn computes the function's result.
	Fn func(ctx context.Context, arg value.V) (value.V, error)
}

// ID implements subround.Computation.
func (f *Func) ID() string { return f.Name }

// Signature implements subround.Computation.
func (f *Func) Signature() shape.Func { return f.Sig }

// Ops implements subround.Graph.
func (f *Func) Ops() []subround.Op { return f.Graph }

func (f *Func) String() string {
	return fmt.Sprintf("%s %v", f.Name, f.Sig)
}

// Backend runs *Func computations in the calling goroutine. A Backend
// rejects overlapping invocations: the engine is expected to run one
// invocation at a time on each backend.
type Backend struct {
	// Name is used in errors and logs.
	Name string
	// Limiter, if non-nil, is acquired for the duration of each
	// invocation.
	Limiter *limiter.Limiter
	// Log receives debug messages for each invocation.
	Log *log.Logger

	mu   sync.Mutex
	busy bool
	n    int
}

// Invoke implements subround.Backend.
func (b *Backend) Invoke(ctx context.Context, comp subround.Computation, arg value.V) (value.V, error) {
	f, ok := comp.(*Func)
	if !ok {
		return nil, errors.E("invoke", b.Name, comp.ID(), errors.NotSupported,
			errors.Errorf("local backends run *local.Func computations, not %T", comp))
	}
	b.mu.Lock()
	if b.busy {
		b.mu.Unlock()
		return nil, errors.E("invoke", b.Name, f.Name, errors.Invalid, errors.New("backend is busy"))
	}
	b.busy = true
	b.n++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.busy = false
		b.mu.Unlock()
	}()

	if b.Limiter != nil {
		if err := b.Limiter.Acquire(ctx, 1); err != nil {
			return nil, errors.E("invoke", b.Name, f.Name, err)
		}
		defer b.Limiter.Release(1)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E("invoke", b.Name, f.Name, err)
	}
	if b.Log.At(log.DebugLevel) {
		b.Log.Debugf("%s: invoking %s on %s", b.Name, f.Name, value.Digest(arg).Short())
	}
	v, err := f.Fn(ctx, arg)
	if err != nil {
		return nil, errors.E("invoke", b.Name, f.Name, err)
	}
	return v, nil
}

// Invocations returns the number of invocations accepted by b.
func (b *Backend) Invocations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Backend) String() string { return b.Name }

// NewPool returns n local backends. If parallelism is positive, the
// backends share a limiter that allows at most parallelism
// invocations to evaluate at once.
func NewPool(n, parallelism int, log *log.Logger) []*Backend {
	var lim *limiter.Limiter
	if parallelism > 0 {
		lim = limiter.New()
		lim.Release(parallelism)
	}
	backends := make([]*Backend, n)
	for i := range backends {
		backends[i] = &Backend{
			Name:    fmt.Sprintf("local%d", i),
			Limiter: lim,
			Log:     log,
		}
	}
	return backends
}

// Backends returns the pool as a slice of subround.Backend.
func Backends(pool []*Backend) []subround.Backend {
	backends := make([]subround.Backend, len(pool))
	for i, b := range pool {
		backends[i] = b
	}
	return backends
}
