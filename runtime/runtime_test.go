// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/form"
	"github.com/grailbio/subround/local"
	"github.com/grailbio/subround/runtime"
	"github.com/grailbio/subround/sched"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/test/testutil"
	"github.com/grailbio/subround/value"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// grailbio/base/status pulls in v.io/x/lib/llog, whose flush
	// daemon runs for the life of the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("v.io/x/lib/llog.(*Log).flushDaemon"))
}

func newContext(n int) (*runtime.Context, []*testutil.Backend) {
	backends := testutil.NewBackends(n)
	return &runtime.Context{Backends: testutil.Backends(backends), Stats: sched.NewStats()}, backends
}

// compiler compiles raw computations named after the forms in
// testutil, counting compilations.
type compiler struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *compiler) Compile(ctx context.Context, comp subround.Computation) (subround.Stages, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[comp.ID()]++
	c.mu.Unlock()
	var f *form.Form
	switch comp.ID() {
	case "sum":
		f = testutil.Sum()
	case "mean":
		f = testutil.Mean()
	case "count":
		f = testutil.Count()
	case "invalid":
		sum := testutil.Sum()
		// The merge stage is not a valid reduce stage.
		return subround.Stages{Reduce: sum.Merge(), Merge: sum.Merge(), Post: sum.Post()}, nil
	default:
		return subround.Stages{}, errors.E(errors.NotSupported, errors.Errorf("cannot compile %s", comp.ID()))
	}
	return subround.Stages{Reduce: f.Reduce(), Merge: f.Merge(), Post: f.Post()}, nil
}

func (c *compiler) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func raw(name string, param, result *shape.T) subround.Computation {
	return &local.Func{Name: name, Sig: shape.Func{Param: param, Result: result}}
}

func TestInvokeForm(t *testing.T) {
	c, backends := newContext(3)
	v, err := c.Invoke(context.Background(), testutil.Sum(), value.Ints(1, 2, 3, 4, 5))
	require.NoError(t, err)
	require.Equal(t, "15", value.Sprint(v))
	require.Equal(t, 3, testutil.TotalCalls(backends, testutil.SumReduce))
	require.Equal(t, 1, testutil.TotalCalls(backends, testutil.SumPost))
}

func TestInvokeSubrounds(t *testing.T) {
	c, backends := newContext(4)
	c.Subrounds = 2
	r, err := c.Run(context.Background(), testutil.Sum(), value.Ints(1, 2, 3, 4, 5))
	require.NoError(t, err)
	require.Equal(t, 2, r.Subrounds)
	require.Equal(t, "15", value.Sprint(r.Merged))
	require.NotEmpty(t, r.ID)

	var args []string
	for _, b := range backends {
		for _, call := range b.Calls() {
			if call.Comp == testutil.SumReduce {
				args = append(args, value.Sprint(call.Arg))
			}
		}
	}
	require.ElementsMatch(t, []string{"[1, 2, 3]", "[4, 5]"}, args)
}

func TestInvokeMean(t *testing.T) {
	c, backends := newContext(2)
	c.Subrounds = 4
	v, err := c.Invoke(context.Background(), testutil.Mean(), value.Floats(2, 4, 6, 8))
	require.NoError(t, err)
	require.Equal(t, "<mean=5, centered=[-3, -1, 1, 3]>", value.Sprint(v))
	require.Equal(t, 4, testutil.TotalCalls(backends, testutil.MeanPost))
}

func TestInvokeNoArgument(t *testing.T) {
	c, backends := newContext(5)
	c.Subrounds = 2
	v, err := c.Invoke(context.Background(), testutil.Count(), nil)
	require.NoError(t, err)
	// An absent argument yields one subround per backend.
	require.Equal(t, "5", value.Sprint(v))
	require.Equal(t, 1, testutil.TotalCalls(backends, testutil.CountPost))
}

func TestInvokeArgumentErrors(t *testing.T) {
	c, _ := newContext(2)
	_, err := c.Invoke(context.Background(), testutil.Sum(), nil)
	require.True(t, errors.Is(errors.Partition, err), "%v", err)
	_, err = c.Invoke(context.Background(), testutil.Count(), value.Ints(1))
	require.True(t, errors.Is(errors.Partition, err), "%v", err)
	_, err = c.Invoke(context.Background(), testutil.Sum(), value.Int(1))
	require.True(t, errors.Is(errors.Partition, err), "%v", err)
}

func TestInvokeConfigurationErrors(t *testing.T) {
	c, _ := newContext(2)
	c.Subrounds = -1
	_, err := c.Invoke(context.Background(), testutil.Sum(), value.Ints(1))
	require.True(t, errors.Is(errors.Configuration, err), "%v", err)

	c = new(runtime.Context)
	_, err = c.Invoke(context.Background(), testutil.Sum(), value.Ints(1))
	require.True(t, errors.Is(errors.Configuration, err), "%v", err)

	c, _ = newContext(1)
	_, err = c.Invoke(context.Background(), "sum", value.Ints(1))
	require.True(t, errors.Is(errors.NotSupported, err), "%v", err)
}

func TestInvokeNoCompiler(t *testing.T) {
	c, _ := newContext(2)
	_, err := c.Invoke(context.Background(), raw("sum", shape.AtLocal(shape.Int), shape.AtHub(shape.Int)), value.Ints(1))
	require.True(t, errors.Is(errors.NoCompiler, err), "%v", err)
}

func TestInvokeCompiled(t *testing.T) {
	c, _ := newContext(3)
	comp := new(compiler)
	c.Compiler = comp
	sum := raw("sum", shape.AtLocal(shape.Int), shape.AtHub(shape.Int))
	for i := 1; i <= 3; i++ {
		v, err := c.Invoke(context.Background(), sum, value.Ints(1, 2, 3))
		require.NoError(t, err)
		require.Equal(t, "6", value.Sprint(v))
	}
	require.Equal(t, 1, comp.count("sum"))
}

func TestInvokeCompilationShape(t *testing.T) {
	c, _ := newContext(1)
	comp := new(compiler)
	c.Compiler = comp
	invalid := raw("invalid", shape.AtLocal(shape.Int), shape.AtHub(shape.Int))
	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), invalid, value.Ints(1))
		require.True(t, errors.Is(errors.CompilationShape, err), "%v", err)
	}
	// Failed compilations are retried.
	require.Equal(t, 2, comp.count("invalid"))

	_, err := c.Invoke(context.Background(), raw("unknown", nil, nil), nil)
	require.True(t, errors.Is(errors.NotSupported, err), "%v", err)
}

func TestPrecompile(t *testing.T) {
	c, _ := newContext(1)
	comp := new(compiler)
	c.Compiler = comp
	var comps []subround.Computation
	for _, name := range []string{"sum", "mean", "count"} {
		comps = append(comps, raw(name, nil, nil))
	}
	require.NoError(t, c.Precompile(context.Background(), comps...))
	require.NoError(t, c.Precompile(context.Background(), comps...))
	for _, name := range []string{"sum", "mean", "count"} {
		require.Equal(t, 1, comp.count(name), name)
	}
	err := c.Precompile(context.Background(), raw("invalid", nil, nil))
	require.True(t, errors.Is(errors.CompilationShape, err), "%v", err)
}

func TestInvocationFailure(t *testing.T) {
	c, backends := newContext(3)
	for _, b := range backends {
		b.Fail = func(comp string, arg value.V) error {
			if comp == testutil.SumReduce && value.Equal(arg, value.Ints(3, 4)) {
				return fmt.Errorf("lost subround")
			}
			return nil
		}
	}
	_, err := c.Invoke(context.Background(), testutil.Sum(), value.Ints(1, 2, 3, 4, 5, 6))
	require.True(t, errors.Is(errors.Invocation, err), "%v", err)
	var ierr *sched.InvocationError
	require.True(t, errors.As(err, &ierr))
	require.Equal(t, subround.Reduce, ierr.Stage)
	require.Equal(t, 1, ierr.Subround)

	stats := c.Stats.GetStats()
	require.Equal(t, int64(1), stats.TotalRounds)
	// In-flight subrounds may also fail as they are canceled.
	require.GreaterOrEqual(t, stats.TotalFailures, int64(1))
}

type closingBackend struct {
	*testutil.Backend
	closed bool
}

func (b *closingBackend) Close() error {
	b.closed = true
	return nil
}

func TestClose(t *testing.T) {
	bs := testutil.NewBackends(2)
	closer := &closingBackend{Backend: bs[0]}
	c := &runtime.Context{Backends: []subround.Backend{closer, bs[1]}}
	require.NoError(t, c.Close())
	require.True(t, closer.closed)
}
