// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cardinality infers how many physical elements a shaped
// value carries at each distribution site.
package cardinality

import (
	"fmt"

	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

// Counts maps each distribution site present in a value to the number
// of elements at that site. The hub, when present, always counts 1.
// A site that is absent from Counts places no per-element values.
type Counts map[shape.Site]int

// An Inferrer infers the cardinalities of a shaped value.
type Inferrer interface {
	Infer(v value.V, t *shape.T) (Counts, error)
}

// InferrerFunc adapts an ordinary function to an Inferrer.
type InferrerFunc func(v value.V, t *shape.T) (Counts, error)

// Infer implements Inferrer.
func (f InferrerFunc) Infer(v value.V, t *shape.T) (Counts, error) {
	return f(v, t)
}

// Default is the default inferrer. It counts the elements of every
// local, non-all-equal list in the value and requires them to agree.
// All-equal local values do not determine a count.
var Default Inferrer = InferrerFunc(Infer)

// Infer implements the default inference.
func Infer(v value.V, t *shape.T) (Counts, error) {
	counts := make(Counts)
	if err := infer(counts, v, t, "arg"); err != nil {
		return nil, err
	}
	return counts, nil
}

func infer(counts Counts, v value.V, t *shape.T, path string) error {
	switch t.Kind {
	case shape.StructKind:
		s, ok := v.(value.Struct)
		if !ok || len(s) != len(t.Fields) {
			return errors.E("infer cardinality", path, errors.Partition,
				errors.Errorf("value %s does not match shape %v", value.Sprint(v), t))
		}
		for i, f := range t.Fields {
			if err := infer(counts, s[i].V, f.T, fmt.Sprintf("%s.%d", path, i)); err != nil {
				return err
			}
		}
	case shape.DistributedKind:
		if t.Site == shape.Hub {
			counts[shape.Hub] = 1
			return nil
		}
		if t.AllEqual {
			return nil
		}
		l, ok := v.(value.List)
		if !ok {
			return errors.E("infer cardinality", path, errors.Partition,
				errors.Errorf("expected a list of elements for shape %v, got %s", t, value.Sprint(v)))
		}
		if n, ok := counts[shape.Local]; ok && n != len(l) {
			return errors.E("infer cardinality", path, errors.Partition,
				errors.Errorf("inconsistent local cardinality: %d and %d", n, len(l)))
		}
		counts[shape.Local] = len(l)
	}
	return nil
}
