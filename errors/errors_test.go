// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors

import (
	"context"
	"fmt"
	"testing"
)

func TestE(t *testing.T) {
	for _, c := range []struct {
		err  error
		kind Kind
	}{
		{E("invoke", context.DeadlineExceeded), Timeout},
		{E("invoke", context.Canceled), Canceled},
		{E("invoke", isTemporary(true)), Temporary},
		{E("invoke", isTemporary(false)), Other},
		{E("invoke", Invalid, context.Canceled), Invalid},
	} {
		if got, want := Recover(c.err).Kind, c.kind; got != want {
			t.Errorf("%v: got %v, want %v", c.err, got, want)
		}
	}

	// The kind is reported once, at the outermost error.
	e := Recover(E("split", Partition, E("walk", Partition)))
	if got, want := e.Kind, Partition; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	cause := Recover(e.Err)
	if got, want := cause.Op, "walk"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := cause.Kind, Other; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Error(), "split: partition error:\n\twalk"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// A kind-only cause is folded into its parent.
	e = Recover(E("invoke", E(Unavailable)))
	if e.Err != nil {
		t.Errorf("expected cause to be folded, got %v", e.Err)
	}
	if !Is(Unavailable, e) {
		t.Errorf("expected %v to be unavailable", e)
	}
}

func TestError(t *testing.T) {
	e := E("new form", MergeNotAssignable, New("param (int, int) result string"))
	if got, want := e.Error(), "new form: merge is not pairwise iterable: param (int, int) result string"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e = E("invoke", "subround", "2", E(Unavailable))
	if got, want := e.Error(), "invoke subround 2: unavailable"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e = E("run round", E("invoke", "post", Invocation, New("boom")))
	if got, want := e.Error(), "run round: invocation failure:\n\tinvoke post: boom"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

type isTemporary bool

func (t isTemporary) Error() string   { return "maybe a temporary error" }
func (t isTemporary) Temporary() bool { return bool(t) }

func TestIs(t *testing.T) {
	for kind := Other; kind < maxKind; kind++ {
		if got, want := Is(kind, E(kind)), kind != Other; got != want {
			t.Errorf("%v: got %v, want %v", kind, got, want)
		}
	}
	for _, temp := range []bool{true, false} {
		if got, want := Is(Temporary, isTemporary(temp)), temp; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if !Is(Invocation, E("run round", E("invoke", Invocation))) {
		t.Error("expected kind to be found in chain")
	}
}

type stageError struct{ stage string }

func (s *stageError) Error() string { return "stage " + s.stage }

func TestAs(t *testing.T) {
	err := E("run round", Invocation, &stageError{"reduce"})
	var se *stageError
	if !As(err, &se) {
		t.Fatalf("As(%v): no stageError", err)
	}
	if got, want := se.stage, "reduce"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	wrapped := fmt.Errorf("wrapped: %w", err)
	if !As(wrapped, &se) {
		t.Errorf("As(%v): no stageError", wrapped)
	}
}

func TestClasses(t *testing.T) {
	for k := Other; k < maxKind; k++ {
		structural := k == ReduceResult || k == MergeNotAssignable || k == PostParameter || k == NestedAggregation
		if got, want := k.Structural(), structural; got != want {
			t.Errorf("%v: structural: got %v, want %v", k, got, want)
		}
		config := k == NoCompiler || k == CompilationShape || k == Configuration
		if got, want := k.Configurational(), config; got != want {
			t.Errorf("%v: configurational: got %v, want %v", k, got, want)
		}
		if (k.Structural() || k.Configurational()) && Transient(E(k)) {
			t.Errorf("%v: structural errors must not be transient", k)
		}
	}
}

func TestTransient(t *testing.T) {
	for _, c := range []struct {
		err  error
		want bool
	}{
		{E(Temporary), true},
		{E(Unavailable), true},
		{E("invoke", Timeout), true},
		{E(Invocation), false},
		{E(Fatal), false},
		{New("plain"), false},
		{nil, false},
	} {
		if got := Transient(c.err); got != c.want {
			t.Errorf("Transient(%v): got %v, want %v", c.err, got, c.want)
		}
	}
}
