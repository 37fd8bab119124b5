// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package subround

import (
	"context"
	"fmt"

	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

// A Computation is an opaque invocable with a declared signature.
// The engine never inspects a computation beyond its signature (and,
// optionally, its graph); backends are responsible for running it.
type Computation interface {
	// ID returns a stable identifier for the computation. Compiled
	// forms are cached by ID.
	ID() string
	// Signature returns the computation's parameter and result shapes.
	Signature() shape.Func
}

// An Op is an operation appearing in a computation's graph.
type Op struct {
	// ID identifies the operation, e.g., "federated_sum".
	ID string
	// Signature is the operation's declared signature.
	Signature shape.Func
}

func (o Op) String() string {
	return fmt.Sprintf("%s: %s", o.ID, o.Signature)
}

// Graph is implemented by computations that can enumerate the
// operations they contain. Structural checks that depend on a
// computation's contents are skipped for computations that do not
// implement Graph.
type Graph interface {
	Ops() []Op
}

// A Backend executes computations. Each backend runs at most one
// invocation at a time on behalf of the engine; invocations may block
// for an arbitrary amount of time and may fail. Backends should
// return promptly once the provided context is done.
type Backend interface {
	Invoke(ctx context.Context, comp Computation, arg value.V) (value.V, error)
}

// BackendFunc adapts an ordinary function to a Backend.
type BackendFunc func(ctx context.Context, comp Computation, arg value.V) (value.V, error)

// Invoke implements Backend.
func (f BackendFunc) Invoke(ctx context.Context, comp Computation, arg value.V) (value.V, error) {
	return f(ctx, comp, arg)
}

// Stages is the output of a compiler: the three computations of a
// form, not yet validated.
type Stages struct {
	Reduce, Merge, Post Computation
}

// A Compiler rewrites a raw computation into its three stages.
type Compiler interface {
	Compile(ctx context.Context, comp Computation) (Stages, error)
}

// CompilerFunc adapts an ordinary function to a Compiler.
type CompilerFunc func(ctx context.Context, comp Computation) (Stages, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(ctx context.Context, comp Computation) (Stages, error) {
	return f(ctx, comp)
}

// Stage identifies one of the three stages of a form.
type Stage int

const (
	// Reduce is the per-partition stage.
	Reduce Stage = iota
	// Merge is the pairwise fold stage.
	Merge
	// Post is the post-processing stage.
	Post
)

func (s Stage) String() string {
	switch s {
	case Reduce:
		return "reduce"
	case Merge:
		return "merge"
	case Post:
		return "post"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}
