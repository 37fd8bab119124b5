// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition splits shaped arguments into subround arguments
// and reassembles per-subround results.
//
// Split partitions every local, non-all-equal value into contiguous,
// order-preserving slices and replicates everything else; Repackage
// is its exact inverse. Partitions are sized by ceiling division so
// that earlier subrounds receive at most one more element than later
// ones, and no subround ever receives an empty slice.
package partition

import (
	"github.com/grailbio/subround/cardinality"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

// State is the traversal state of a single partitioning step. States
// are values: each step returns a new State and never modifies its
// receiver.
type State struct {
	// Payload is the value being partitioned, or, in a returned
	// state, the partition produced by the step.
	Payload value.V
	// RemainingElements is the number of elements not yet assigned to
	// a partition.
	RemainingElements int
	// RemainingPartitions is the number of partitions yet to be
	// produced.
	RemainingPartitions int
	// Cursor is the index of the first unassigned element.
	Cursor int
}

// With returns a copy of s with the provided payload.
func (s State) With(payload value.V) State {
	s.Payload = payload
	return s
}

func (s State) sameCounters(t State) bool {
	return s.RemainingElements == t.RemainingElements &&
		s.RemainingPartitions == t.RemainingPartitions &&
		s.Cursor == t.Cursor
}

// Next produces the next partition of s.Payload, which has shape t.
// The returned state carries the partition as its payload and the
// counters advanced past it.
func (s State) Next(t *shape.T) (State, error) {
	switch {
	case t.Kind == shape.StructKind:
		st, ok := s.Payload.(value.Struct)
		if !ok || len(st) != len(t.Fields) {
			return State{}, errors.E("partition", errors.Partition,
				errors.Errorf("value %s does not match shape %v", value.Sprint(s.Payload), t))
		}
		var (
			next = s
			out  = make(value.Struct, len(st))
		)
		// Every field is sliced from the same incoming counters so that
		// all local fields cover the same range of elements.
		for i, f := range t.Fields {
			r, err := s.With(st[i].V).Next(f.T)
			if err != nil {
				return State{}, err
			}
			if !r.sameCounters(s) {
				next = r
			}
			out[i] = value.Field{Name: st[i].Name, V: r.Payload}
		}
		return next.With(out), nil
	case t.Kind == shape.DistributedKind && t.Site == shape.Local && !t.AllEqual:
		l, ok := s.Payload.(value.List)
		if !ok {
			return State{}, errors.E("partition", errors.Partition,
				errors.Errorf("expected a list of elements for shape %v, got %s", t, value.Sprint(s.Payload)))
		}
		if s.RemainingPartitions <= 0 {
			return State{}, errors.E("partition", errors.Invalid, errors.New("no partitions remain"))
		}
		n := (s.RemainingElements + s.RemainingPartitions - 1) / s.RemainingPartitions
		if s.Cursor+n > len(l) {
			return State{}, errors.E("partition", errors.Partition,
				errors.Errorf("list of %d elements is too short for slice [%d:%d]", len(l), s.Cursor, s.Cursor+n))
		}
		slice := make(value.List, n)
		copy(slice, l[s.Cursor:s.Cursor+n])
		return State{
			Payload:             slice,
			RemainingElements:   s.RemainingElements - n,
			RemainingPartitions: s.RemainingPartitions - 1,
			Cursor:              s.Cursor + n,
		}, nil
	default:
		// All-equal and hub values, as well as scalars, are replicated.
		return s, nil
	}
}

// Split partitions value v, of shape t, into at most n subround
// arguments. The local element count is obtained from inferrer (or
// cardinality.Default if nil):
//
//   - if v has no local elements, v is replicated n times: the
//     computation may still perform meaningful work in every subround;
//   - if v has a local count of zero, v is returned as the only
//     subround argument;
//   - otherwise local, non-all-equal values are sliced into
//     min(n, count) partitions.
//
// Split fails with errors.Configuration when n is not positive, and
// with errors.Partition when v does not match t.
func Split(v value.V, t *shape.T, n int, inferrer cardinality.Inferrer) ([]value.V, error) {
	if n <= 0 {
		return nil, errors.E("split", errors.Configuration, errors.Errorf("invalid subround count %d", n))
	}
	if inferrer == nil {
		inferrer = cardinality.Default
	}
	counts, err := inferrer.Infer(v, t)
	if err != nil {
		return nil, errors.E("split", err)
	}
	count, ok := counts[shape.Local]
	if !ok {
		vs := make([]value.V, n)
		for i := range vs {
			vs[i] = v
		}
		return vs, nil
	}
	if count == 0 {
		return []value.V{v}, nil
	}
	var (
		vs    []value.V
		state = State{Payload: v, RemainingElements: count, RemainingPartitions: n}
	)
	for i := 0; i < n && state.RemainingElements > 0; i++ {
		next, err := state.Next(t)
		if err != nil {
			return nil, errors.E("split", err)
		}
		vs = append(vs, next.Payload)
		state = next.With(v)
	}
	return vs, nil
}

// Repackage inverts Split: given per-subround values of shape t, it
// returns the single value they partition. Local, non-all-equal values
// are concatenated in order; everything else is taken from the first
// subround.
func Repackage(results []value.V, t *shape.T) (value.V, error) {
	if len(results) == 0 {
		return nil, errors.E("repackage", errors.Partition, errors.New("no subround results"))
	}
	switch {
	case t.Kind == shape.StructKind:
		structs := make([]value.Struct, len(results))
		for i, r := range results {
			s, ok := r.(value.Struct)
			if !ok || len(s) != len(t.Fields) {
				return nil, errors.E("repackage", errors.Partition,
					errors.Errorf("subround %d: value %s does not match shape %v", i, value.Sprint(r), t))
			}
			structs[i] = s
		}
		out := make(value.Struct, len(t.Fields))
		elems := make([]value.V, len(results))
		for i, f := range t.Fields {
			for j, s := range structs {
				elems[j] = s[i].V
			}
			v, err := Repackage(elems, f.T)
			if err != nil {
				return nil, err
			}
			out[i] = value.Field{Name: structs[0][i].Name, V: v}
		}
		return out, nil
	case t.Kind == shape.DistributedKind && t.Site == shape.Local && !t.AllEqual:
		out := value.List{}
		for i, r := range results {
			l, ok := r.(value.List)
			if !ok {
				return nil, errors.E("repackage", errors.Partition,
					errors.Errorf("subround %d: expected a list for shape %v, got %s", i, t, value.Sprint(r)))
			}
			out = append(out, l...)
		}
		return out, nil
	default:
		return results[0], nil
	}
}
