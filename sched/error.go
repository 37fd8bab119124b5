// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/value"
)

// InvocationError describes the invocation that failed a round. It is
// returned wrapped in an *errors.Error of kind errors.Invocation; use
// errors.As to retrieve it.
//
// Work folded before the failure survives in Partial: a caller may
// re-drive only the failed subround and combine its reduce result with
// Partial using Scheduler.Merge.
type InvocationError struct {
	// Stage is the stage of the failed invocation.
	Stage subround.Stage
	// Subround is the partition index of the failed invocation.
	Subround int
	// Backend is the index of the backend that ran the invocation.
	Backend int
	// Partial is the merge accumulator at the time of failure, or nil
	// if no reduce result had been folded.
	Partial value.V
	// Folded lists the subrounds whose reduce results are folded into
	// Partial, in fold order.
	Folded []int
	// Err is the underlying invocation error.
	Err error
}

// Error implements error.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s subround %d on backend %d: %v", e.Stage, e.Subround, e.Backend, e.Err)
}

// Unwrap returns the underlying invocation error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}
