// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"
	"sync"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/value"
)

// TaskState enumerates the possible states of a task.
type TaskState int

const (
	// TaskInit is the initial state of a Task. No work has yet been done.
	TaskInit TaskState = iota
	// TaskRunning indicates the task has been dispatched to a backend
	// and is currently executing.
	TaskRunning
	// TaskDone indicates the task has completed, successfully or not.
	TaskDone
)

func (s TaskState) String() string {
	switch s {
	case TaskInit:
		return "initializing"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task is a single subround invocation: one stage computation applied
// to one subround argument. A task is dispatched exactly once, to
// exactly one backend, and is discarded once its result is folded.
type Task struct {
	// Index is the task's subround (partition) index.
	Index int
	// Stage is the stage the task invokes.
	Stage subround.Stage
	// Arg is the subround argument.
	Arg value.V

	// Backend is the index of the backend running (or that ran) the
	// task. It is set by the scheduler before the task enters
	// TaskRunning.
	Backend int
	// Result stores the invocation's result once the task is TaskDone.
	Result value.V
	// Err stores the invocation error. If Err != nil while the task is
	// TaskDone, then the invocation failed.
	Err error

	mu    sync.Mutex
	state TaskState
}

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) set(state TaskState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *Task) String() string {
	return fmt.Sprintf("%s subround %d", t.Stage, t.Index)
}
