// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package testutil

import (
	"context"

	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/form"
	"github.com/grailbio/subround/local"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

// Computation IDs of the stages of the forms below.
const (
	SumReduce = "sum.reduce"
	SumMerge  = "sum.merge"
	SumPost   = "sum.post"

	MeanReduce = "mean.reduce"
	MeanMerge  = "mean.merge"
	MeanPost   = "mean.post"

	CountReduce = "count.reduce"
	CountMerge  = "count.merge"
	CountPost   = "count.post"
)

func must(f *form.Form, err error) *form.Form {
	if err != nil {
		panic(err)
	}
	return f
}

func fn(name string, param, result *shape.T, f func(value.V) (value.V, error)) *local.Func {
	return &local.Func{
		Name: name,
		Sig:  shape.Func{Param: param, Result: result},
		Fn: func(ctx context.Context, arg value.V) (value.V, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return f(arg)
		},
	}
}

func list(v value.V) (value.List, error) {
	l, ok := v.(value.List)
	if !ok {
		return nil, errors.E(errors.Invalid, errors.Errorf("expected list, got %s", value.Sprint(v)))
	}
	return l, nil
}

func pair(v value.V) (a, b value.V, err error) {
	s, ok := v.(value.Struct)
	if !ok || len(s) != 2 {
		return nil, nil, errors.E(errors.Invalid, errors.Errorf("expected pair, got %s", value.Sprint(v)))
	}
	return s[0].V, s[1].V, nil
}

func addInts(v value.V) (value.V, error) {
	a, b, err := pair(v)
	if err != nil {
		return nil, err
	}
	x, ok1 := a.(value.Int)
	y, ok2 := b.(value.Int)
	if !ok1 || !ok2 {
		return nil, errors.E(errors.Invalid, errors.Errorf("expected ints, got %s", value.Sprint(v)))
	}
	return x + y, nil
}

// Sum returns a form summing a local list of integers. Its post stage
// returns the merged sum at the hub, and is thus partition
// independent.
func Sum() *form.Form {
	localInts := shape.AtLocal(shape.Int)
	reduce := fn(SumReduce, localInts, shape.AtHub(shape.Int), func(v value.V) (value.V, error) {
		l, err := list(v)
		if err != nil {
			return nil, err
		}
		var sum value.Int
		for _, e := range l {
			x, ok := e.(value.Int)
			if !ok {
				return nil, errors.E(errors.Invalid, errors.Errorf("expected int, got %s", value.Sprint(e)))
			}
			sum += x
		}
		return sum, nil
	})
	merge := fn(SumMerge, shape.Unnamed(shape.Int, shape.Int), shape.Int, addInts)
	post := fn(SumPost, shape.Unnamed(localInts, shape.AtHub(shape.Int)), shape.AtHub(shape.Int), func(v value.V) (value.V, error) {
		_, merged, err := pair(v)
		return merged, err
	})
	return must(form.New(reduce, merge, post))
}

// MeanStats is the shape of the mean form's merged intermediate.
var MeanStats = shape.Struct(
	&shape.Field{Name: "sum", T: shape.Float},
	&shape.Field{Name: "count", T: shape.Int},
)

func meanStats(v value.V) (float64, int64, error) {
	s, ok := v.(value.Struct)
	if !ok || len(s) != 2 {
		return 0, 0, errors.E(errors.Invalid, errors.Errorf("expected <sum, count>, got %s", value.Sprint(v)))
	}
	sum, ok1 := s[0].V.(value.Float)
	count, ok2 := s[1].V.(value.Int)
	if !ok1 || !ok2 {
		return 0, 0, errors.E(errors.Invalid, errors.Errorf("expected <sum, count>, got %s", value.Sprint(v)))
	}
	return float64(sum), int64(count), nil
}

func newMeanStats(sum float64, count int64) value.V {
	return value.Struct{{Name: "sum", V: value.Float(sum)}, {Name: "count", V: value.Int(count)}}
}

// Mean returns a form that computes the mean of a local list of
// floats and centers each element on it. Its post stage returns the
// struct <mean=float@hub, centered=float@local>, which depends on
// the partition and is therefore reassembled from every subround.
func Mean() *form.Form {
	localFloats := shape.AtLocal(shape.Float)
	reduce := fn(MeanReduce, localFloats, shape.AtHub(MeanStats), func(v value.V) (value.V, error) {
		l, err := list(v)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, e := range l {
			x, ok := e.(value.Float)
			if !ok {
				return nil, errors.E(errors.Invalid, errors.Errorf("expected float, got %s", value.Sprint(e)))
			}
			sum += float64(x)
		}
		return newMeanStats(sum, int64(len(l))), nil
	})
	merge := fn(MeanMerge, shape.Unnamed(MeanStats, MeanStats), MeanStats, func(v value.V) (value.V, error) {
		a, b, err := pair(v)
		if err != nil {
			return nil, err
		}
		s1, n1, err := meanStats(a)
		if err != nil {
			return nil, err
		}
		s2, n2, err := meanStats(b)
		if err != nil {
			return nil, err
		}
		return newMeanStats(s1+s2, n1+n2), nil
	})
	post := fn(MeanPost,
		shape.Unnamed(localFloats, shape.AtHub(MeanStats)),
		shape.Struct(
			&shape.Field{Name: "mean", T: shape.AtHub(shape.Float)},
			&shape.Field{Name: "centered", T: localFloats},
		),
		func(v value.V) (value.V, error) {
			arg, merged, err := pair(v)
			if err != nil {
				return nil, err
			}
			l, err := list(arg)
			if err != nil {
				return nil, err
			}
			sum, count, err := meanStats(merged)
			if err != nil {
				return nil, err
			}
			var mean float64
			if count > 0 {
				mean = sum / float64(count)
			}
			centered := make(value.List, len(l))
			for i, e := range l {
				x, ok := e.(value.Float)
				if !ok {
					return nil, errors.E(errors.Invalid, errors.Errorf("expected float, got %s", value.Sprint(e)))
				}
				centered[i] = value.Float(float64(x) - mean)
			}
			return value.Struct{{Name: "mean", V: value.Float(mean)}, {Name: "centered", V: centered}}, nil
		})
	return must(form.New(reduce, merge, post))
}

// Count returns a form that takes no argument: each subround's reduce
// stage returns 1, so that the round's merged intermediate counts the
// subrounds. Its post stage returns the count.
func Count() *form.Form {
	reduce := fn(CountReduce, nil, shape.AtHub(shape.Int), func(value.V) (value.V, error) {
		return value.Int(1), nil
	})
	merge := fn(CountMerge, shape.Unnamed(shape.Int, shape.Int), shape.Int, addInts)
	post := fn(CountPost, shape.AtHub(shape.Int), shape.AtHub(shape.Int), func(v value.V) (value.V, error) {
		return v, nil
	})
	return must(form.New(reduce, merge, post))
}
