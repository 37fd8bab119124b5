// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sched implements subround scheduling.
//
// A round applies a three-stage form to a list of subround arguments
// over a fixed pool of backends. Each argument becomes a reduce Task;
// tasks are dispatched to backends in argument order, one task per
// backend at a time. Whenever a task completes, its now-free backend
// first folds the task's result into the round's accumulator through
// one merge invocation, and is then handed the next pending argument.
// A pool smaller than the argument list thus sequentializes excess
// work without idling. Results are folded in the order of completion;
// merge must be safe to apply in any order.
//
// Once every reduce result is folded, the post stage runs. If the post
// stage's result cannot depend on the partition that produced it, post
// is invoked once; otherwise it is fanned out per subround through the
// same pool, and its results are reassembled by partition.Repackage.
//
// All bookkeeping is owned by a single control loop; invocations run
// in their own goroutines and report back to the loop over a channel.
// The first failed invocation fails the round: nothing further is
// dispatched, in-flight invocations are canceled and drained, and the
// round's error carries an *InvocationError. The scheduler never
// retries.
package sched

import (
	"context"
	"fmt"

	"github.com/grailbio/base/status"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/form"
	"github.com/grailbio/subround/log"
	"github.com/grailbio/subround/partition"
	"github.com/grailbio/subround/value"
)

// A Scheduler runs rounds over a fixed pool of backends. A Scheduler
// may run multiple rounds, but the rounds should not overlap: the
// scheduler relies on each backend running one invocation at a time.
type Scheduler struct {
	// Backends is the pool of backends on which invocations are run.
	Backends []subround.Backend
	// Log logs scheduler actions.
	Log *log.Logger
	// Status, if non-nil, receives a status task for each invocation.
	Status *status.Group
	// Stats, if non-nil, is updated with invocation statistics.
	Stats *Stats
}

// New returns a new scheduler over the provided backends, with stats
// initialized.
func New(backends []subround.Backend) *Scheduler {
	return &Scheduler{Backends: backends, Stats: NewStats()}
}

// ExportStats publishes the scheduler's stats as a go expvar.
func (s *Scheduler) ExportStats() {
	if s.Stats != nil {
		s.Stats.Publish()
	}
}

// Run runs a round of form f over the provided subround arguments. It
// returns the merged intermediate (the fold of all reduce results)
// and the final value produced by the post stage.
//
// When args[i] is nil for every i, the form's reduce stage takes no
// argument, and the post stage receives only the merged intermediate.
// Otherwise post receives the pair (args[i], merged).
//
// If an invocation fails, Run returns an error of kind
// errors.Invocation wrapping an *InvocationError.
func (s *Scheduler) Run(ctx context.Context, f *form.Form, args []value.V) (merged, final value.V, err error) {
	if len(s.Backends) == 0 {
		return nil, nil, errors.E("run", errors.Configuration, errors.New("no backends"))
	}
	if len(args) == 0 {
		return nil, nil, errors.E("run", errors.Invalid, errors.New("no subround arguments"))
	}
	s.Stats.AddRound()
	var (
		folded     []int
		accBackend int
	)
	err = s.do(ctx, f.Reduce(), subround.Reduce, args, func(ctx context.Context, task *Task) error {
		if len(folded) == 0 {
			merged, accBackend = task.Result, task.Backend
			folded = append(folded, task.Index)
			s.Log.Debugf("subround %d: initial accumulator from backend %d", task.Index, task.Backend)
			return nil
		}
		mtask := &Task{Index: task.Index, Stage: subround.Merge, Arg: value.Pair(merged, task.Result), Backend: task.Backend}
		s.invoke(ctx, f.Merge(), mtask)
		if mtask.Err != nil {
			return &InvocationError{Stage: subround.Merge, Subround: task.Index, Backend: task.Backend, Err: mtask.Err}
		}
		merged, accBackend = mtask.Result, task.Backend
		folded = append(folded, task.Index)
		s.Log.Debugf("subround %d: folded on backend %d (%d/%d)", task.Index, task.Backend, len(folded), len(args))
		return nil
	})
	if err != nil {
		return nil, nil, s.fail(err, merged, folded)
	}

	postArg := func(i int) value.V {
		if f.Reduce().Signature().Param == nil {
			return merged
		}
		return value.Pair(args[i], merged)
	}
	if f.PostIsPartitionIndependent() {
		s.Log.Debugf("post result %v is partition independent: invoking post once", f.Post().Signature().Result)
		task := &Task{Index: 0, Stage: subround.Post, Arg: postArg(0), Backend: accBackend}
		s.invoke(ctx, f.Post(), task)
		if task.Err != nil {
			return nil, nil, s.fail(&InvocationError{Stage: subround.Post, Subround: 0, Backend: accBackend, Err: task.Err}, merged, folded)
		}
		return merged, task.Result, nil
	}
	postArgs := make([]value.V, len(args))
	for i := range postArgs {
		postArgs[i] = postArg(i)
	}
	results := make([]value.V, len(args))
	err = s.do(ctx, f.Post(), subround.Post, postArgs, func(_ context.Context, task *Task) error {
		results[task.Index] = task.Result
		return nil
	})
	if err != nil {
		return nil, nil, s.fail(err, merged, folded)
	}
	final, err = partition.Repackage(results, f.Post().Signature().Result)
	if err != nil {
		return nil, nil, errors.E("run", err)
	}
	return merged, final, nil
}

// A Redriven is the reduce result of a subround that was run again
// after its round failed.
type Redriven struct {
	// Subround is the subround's partition index.
	Subround int
	// Result is the subround's reduce result.
	Result value.V
}

// Merge folds the reduce results of re-driven subrounds into partial,
// the accumulator surviving a failed round (InvocationError.Partial).
// If partial is nil, the fold starts at results[0]. Merge invocations
// are run sequentially on the pool's first backend. A failed merge is
// reported as an *InvocationError naming the re-driven subround whose
// result could not be folded; its Partial and Folded describe the
// accumulator up to that point.
func (s *Scheduler) Merge(ctx context.Context, f *form.Form, partial value.V, results ...Redriven) (value.V, error) {
	if len(s.Backends) == 0 {
		return nil, errors.E("merge", errors.Configuration, errors.New("no backends"))
	}
	var (
		acc    = partial
		folded []int
	)
	if acc == nil {
		if len(results) == 0 {
			return nil, errors.E("merge", errors.Invalid, errors.New("nothing to merge"))
		}
		acc = results[0].Result
		folded = append(folded, results[0].Subround)
		results = results[1:]
	}
	for _, r := range results {
		task := &Task{Index: r.Subround, Stage: subround.Merge, Arg: value.Pair(acc, r.Result)}
		s.invoke(ctx, f.Merge(), task)
		if task.Err != nil {
			return nil, errors.E("merge", errors.Invocation, &InvocationError{
				Stage:    subround.Merge,
				Subround: r.Subround,
				Backend:  task.Backend,
				Partial:  acc,
				Folded:   folded,
				Err:      task.Err,
			})
		}
		acc = task.Result
		folded = append(folded, r.Subround)
	}
	return acc, nil
}

func (s *Scheduler) fail(err error, partial value.V, folded []int) error {
	ierr, ok := err.(*InvocationError)
	if !ok {
		return err
	}
	ierr.Partial = partial
	ierr.Folded = append([]int(nil), folded...)
	s.Log.Errorf("round failed: %v", ierr)
	return errors.E("run", errors.Invocation, ierr)
}

// do runs comp over each argument in args using the scheduler's
// backend pool. Each successful task is passed to fold from the
// control loop, before its backend is handed the next pending
// argument. Do returns the first error: either an *InvocationError
// for a failed task, or the error returned by fold.
func (s *Scheduler) do(ctx context.Context, comp subround.Computation, stage subround.Stage, args []value.V, fold func(context.Context, *Task) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		todo     = make([]*Task, len(args))
		nrunning int
		returnc  = make(chan *Task, len(s.Backends))
	)
	for i, arg := range args {
		todo[i] = &Task{Index: i, Stage: stage, Arg: arg}
	}
	dispatch := func(backend int) {
		task := todo[0]
		todo = todo[1:]
		task.Backend = backend
		s.Log.Debugf("dispatching %v to backend %d", task, backend)
		nrunning++
		go func() {
			s.invoke(ctx, comp, task)
			returnc <- task
		}()
	}
	for b := range s.Backends {
		if len(todo) == 0 {
			break
		}
		dispatch(b)
	}
	for nrunning > 0 {
		task := <-returnc
		nrunning--
		var err error
		if task.Err != nil {
			err = &InvocationError{Stage: stage, Subround: task.Index, Backend: task.Backend, Err: task.Err}
		} else if err = fold(ctx, task); err == nil {
			if len(todo) > 0 {
				dispatch(task.Backend)
			}
			continue
		}
		// The round has failed. We dispatch nothing further and drain
		// the in-flight tasks, whose results are discarded.
		cancel()
		for ; nrunning > 0; nrunning-- {
			<-returnc
		}
		return err
	}
	return nil
}

// invoke runs the task's invocation on the task's backend, setting
// the task's result and error.
func (s *Scheduler) invoke(ctx context.Context, comp subround.Computation, task *Task) {
	name := BackendName(task.Backend, s.Backends[task.Backend])
	var st *status.Task
	if s.Status != nil {
		st = s.Status.Start(fmt.Sprintf("%v", task))
		st.Print("running on ", name)
	}
	task.set(TaskRunning)
	s.Stats.AssignTask(task, name)
	task.Result, task.Err = s.Backends[task.Backend].Invoke(ctx, comp, task.Arg)
	s.Stats.ReturnTask(task, name)
	task.set(TaskDone)
	if st == nil {
		return
	}
	if task.Err != nil {
		st.Print("failed on ", name, ": ", task.Err)
	} else {
		st.Print("done on ", name)
	}
	st.Done()
}
