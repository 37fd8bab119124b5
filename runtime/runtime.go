// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package runtime provides the orchestrating context through which
// computations are invoked on a pool of backends. A Context accepts
// either a validated three-stage form, or a raw computation that it
// compiles into one; it partitions the invocation's argument into
// subround arguments, runs the round, and reassembles the result.
package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/once"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/cardinality"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/form"
	"github.com/grailbio/subround/log"
	"github.com/grailbio/subround/partition"
	"github.com/grailbio/subround/pool"
	"github.com/grailbio/subround/sched"
	"github.com/grailbio/subround/value"
)

// Context invokes computations by partitioning their arguments into
// subrounds run over a pool of backends. The caller blocks while the
// round runs concurrently. A Context must not run overlapping rounds
// over the same backends.
type Context struct {
	// Backends is the pool of backends on which rounds run.
	Backends []subround.Backend
	// Compiler, if non-nil, compiles raw computations into their
	// three stages.
	Compiler subround.Compiler
	// Subrounds is the number of subrounds into which arguments are
	// partitioned. If zero, the number of backends is used.
	Subrounds int
	// Cardinality infers the element counts of arguments. If nil,
	// cardinality.Default is used.
	Cardinality cardinality.Inferrer
	// Log receives a log of each round, prefixed by the round's ID.
	Log *log.Logger
	// Status, if non-nil, receives status updates for invocations.
	Status *status.Group
	// Stats, if non-nil, is updated with scheduler statistics.
	Stats *sched.Stats

	mu       sync.Mutex
	compiled map[string]*compiled
}

type compiled struct {
	once once.Task
	form *form.Form
}

// Round is the outcome of a successful round.
type Round struct {
	// ID is the round's unique identifier.
	ID string
	// Subrounds is the number of subrounds the round ran.
	Subrounds int
	// Merged is the merged intermediate of the round.
	Merged value.V
	// Value is the round's final value.
	Value value.V
}

// Invoke invokes comp, which is either a *form.Form or a
// subround.Computation, on the provided argument, which may be nil if
// the computation takes no argument. Computations are compiled with
// the context's compiler; compiled forms are cached by computation ID.
func (c *Context) Invoke(ctx context.Context, comp interface{}, arg value.V) (value.V, error) {
	var (
		f   *form.Form
		err error
	)
	switch comp := comp.(type) {
	case *form.Form:
		f = comp
	case subround.Computation:
		if f, err = c.Compile(ctx, comp); err != nil {
			return nil, err
		}
	default:
		return nil, errors.E("invoke", errors.NotSupported, errors.Errorf("cannot invoke %T", comp))
	}
	r, err := c.Run(ctx, f, arg)
	if err != nil {
		return nil, err
	}
	return r.Value, nil
}

// Run runs a single round of form f with the provided argument.
func (c *Context) Run(ctx context.Context, f *form.Form, arg value.V) (*Round, error) {
	if len(c.Backends) == 0 {
		return nil, errors.E("run", errors.Configuration, errors.New("no backends configured"))
	}
	n := c.Subrounds
	switch {
	case n < 0:
		return nil, errors.E("run", errors.Configuration, errors.Errorf("invalid subround count %d", n))
	case n == 0:
		n = len(c.Backends)
	}
	param := f.Reduce().Signature().Param
	var args []value.V
	switch {
	case arg == nil && param == nil:
		args = make([]value.V, len(c.Backends))
	case arg == nil:
		return nil, errors.E("run", f.Reduce().ID(), errors.Partition,
			errors.Errorf("missing argument of shape %v", param))
	case param == nil:
		return nil, errors.E("run", f.Reduce().ID(), errors.Partition,
			errors.Errorf("computation takes no argument, got %s", value.Sprint(arg)))
	default:
		var err error
		if args, err = partition.Split(arg, param, n, c.Cardinality); err != nil {
			return nil, errors.E("run", f.Reduce().ID(), err)
		}
	}

	r := &Round{ID: uuid.New().String(), Subrounds: len(args)}
	rlog := c.Log.Tee(nil, "round "+r.ID+": ")
	rlog.Debugf("running %v over %d subrounds on %d backends", f, len(args), len(c.Backends))
	s := &sched.Scheduler{
		Backends: c.Backends,
		Log:      rlog,
		Status:   c.Status,
		Stats:    c.Stats,
	}
	var err error
	if r.Merged, r.Value, err = s.Run(ctx, f, args); err != nil {
		rlog.Errorf("failed: %v", err)
		return nil, errors.E("run", r.ID, err)
	}
	rlog.Debugf("done: %s", value.Sprint(r.Value))
	return r, nil
}

// Compile compiles comp into a validated form using the context's
// compiler. Successful compilations are cached by computation ID.
// Compile fails with errors.NoCompiler if the context has no
// compiler, and with errors.CompilationShape if the compiled stages
// do not make a valid form.
func (c *Context) Compile(ctx context.Context, comp subround.Computation) (*form.Form, error) {
	if c.Compiler == nil {
		return nil, errors.E("compile", comp.ID(), errors.NoCompiler)
	}
	c.mu.Lock()
	if c.compiled == nil {
		c.compiled = make(map[string]*compiled)
	}
	e := c.compiled[comp.ID()]
	if e == nil {
		e = new(compiled)
		c.compiled[comp.ID()] = e
	}
	c.mu.Unlock()
	err := e.once.Do(func() error {
		stages, err := c.Compiler.Compile(ctx, comp)
		if err != nil {
			return errors.E("compile", comp.ID(), err)
		}
		f, err := form.New(stages.Reduce, stages.Merge, stages.Post)
		if err != nil {
			return errors.E("compile", comp.ID(), errors.CompilationShape, err)
		}
		e.form = f
		return nil
	})
	if err != nil {
		// Failed compilations are not cached.
		c.mu.Lock()
		if c.compiled[comp.ID()] == e {
			delete(c.compiled, comp.ID())
		}
		c.mu.Unlock()
		return nil, err
	}
	return e.form, nil
}

// Precompile compiles the provided computations in parallel,
// populating the context's cache.
func (c *Context) Precompile(ctx context.Context, comps ...subround.Computation) error {
	return traverse.Each(len(comps), func(i int) error {
		_, err := c.Compile(ctx, comps[i])
		return err
	})
}

// Close closes the context's backends.
func (c *Context) Close() error {
	return pool.Close(c.Backends)
}
