// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package form implements the three-stage form of a computation with
// a single logical aggregation.
//
// A computation in three-stage form is equivalent to invoking Reduce
// on disjoint subsets of its local-placed argument, folding the
// stream of hub-placed results with Merge, and passing the merged
// value (placed at the hub) to Post together with the original
// argument. When Reduce takes no argument, Post accepts only the
// merged value.
//
// Post may not contain operations that take local-placed values and
// produce hub-placed values. This ensures that Post can itself be run
// in subrounds: a local-placed result can only depend on its own
// element and the merged value, while a hub-placed result can only
// depend on the merged value or other hub-placed values.
package form

import (
	"fmt"
	"strings"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/shape"
)

// Form is a validated three-stage form. Forms are immutable and safe
// to share among concurrently running subrounds.
type Form struct {
	reduce, merge, post subround.Computation
}

// New validates and returns the form with the provided stages. New
// fails with an error of kind errors.ReduceResult,
// errors.MergeNotAssignable, errors.PostParameter, or
// errors.NestedAggregation when the corresponding structural
// requirement is violated.
func New(reduce, merge, post subround.Computation) (*Form, error) {
	if reduce == nil || merge == nil || post == nil {
		return nil, errors.E("new form", errors.Invalid, errors.New("missing stage"))
	}
	var (
		reduceSig = reduce.Signature()
		mergeSig  = merge.Signature()
		postSig   = post.Signature()
	)
	if r := reduceSig.Result; r == nil || r.Kind != shape.DistributedKind || r.Site != shape.Hub {
		return nil, errors.E("new form", reduce.ID(), errors.ReduceResult,
			errors.Errorf("expected reduce to return a single hub-placed value; found %v", r))
	}
	elem := reduceSig.Result.Elem

	pair := shape.Unnamed(elem, elem)
	if !mergeSig.Param.AssignableFrom(pair) {
		return nil, errors.E("new form", merge.ID(), errors.MergeNotAssignable,
			errors.Errorf("merge parameter %v is not assignable from %v", mergeSig.Param, pair))
	}
	// The merge parameter is a 2-struct at this point.
	for i, f := range mergeSig.Param.Fields {
		if !f.T.AssignableFrom(mergeSig.Result) {
			return nil, errors.E("new form", merge.ID(), errors.MergeNotAssignable,
				errors.Errorf("merge result %v is not assignable to parameter element %d of %v", mergeSig.Result, i, mergeSig.Param))
		}
	}

	merged := shape.AtHub(mergeSig.Result)
	expected := merged
	if reduceSig.Param != nil {
		expected = shape.Unnamed(reduceSig.Param, merged)
	}
	if !postSig.Param.AssignableFrom(expected) {
		return nil, errors.E("new form", post.ID(), errors.PostParameter,
			errors.Errorf("post parameter %v is not assignable from %v", postSig.Param, expected))
	}

	if g, ok := post.(subround.Graph); ok {
		if aggs := aggregations(g); len(aggs) > 0 {
			descs := make([]string, len(aggs))
			for i, op := range aggs {
				descs[i] = op.String()
			}
			return nil, errors.E("new form", post.ID(), errors.NestedAggregation,
				errors.Errorf("post may not aggregate local values at the hub; found: %s", strings.Join(descs, ", ")))
		}
	}
	return &Form{reduce: reduce, merge: merge, post: post}, nil
}

// aggregations returns the operations in g that move local-placed
// values to the hub.
func aggregations(g subround.Graph) []subround.Op {
	var ops []subround.Op
	for _, op := range g.Ops() {
		if op.Signature.Param.Contains(shape.IsAt(shape.Local)) && op.Signature.Result.Contains(shape.IsAt(shape.Hub)) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Reduce returns the form's reduce stage.
func (f *Form) Reduce() subround.Computation { return f.reduce }

// Merge returns the form's merge stage.
func (f *Form) Merge() subround.Computation { return f.merge }

// Post returns the form's post stage.
func (f *Form) Post() subround.Computation { return f.post }

// Stage returns the computation for stage s.
func (f *Form) Stage(s subround.Stage) subround.Computation {
	switch s {
	case subround.Reduce:
		return f.reduce
	case subround.Merge:
		return f.merge
	case subround.Post:
		return f.post
	default:
		panic(fmt.Sprintf("invalid stage %d", s))
	}
}

// PostIsPartitionIndependent tells whether the post stage's result
// contains only undistributed or all-equal values. Such results cannot
// depend on which partition produced them, so post need only run once.
func (f *Form) PostIsPartitionIndependent() bool {
	return f.post.Signature().Result.ContainsOnly(func(t *shape.T) bool {
		return t.Kind != shape.DistributedKind || t.AllEqual
	})
}

func (f *Form) String() string {
	return fmt.Sprintf("form{reduce %s %v, merge %s %v, post %s %v}",
		f.reduce.ID(), f.reduce.Signature(),
		f.merge.ID(), f.merge.Signature(),
		f.post.ID(), f.post.Signature())
}
