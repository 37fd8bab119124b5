// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/local"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
)

var (
	localFloats = shape.AtLocal(shape.Float)
	moments     = shape.Struct(
		&shape.Field{Name: "sum", T: shape.Float},
		&shape.Field{Name: "count", T: shape.Int},
	)
	centered = shape.Struct(
		&shape.Field{Name: "mean", T: shape.AtHub(shape.Float)},
		&shape.Field{Name: "centered", T: localFloats},
	)
)

// center is the computation run by the run command: it centers a
// local list of floats on their mean. It is not directly executable;
// the demo compiler decomposes it into its stages.
var center = &local.Func{
	Name: "center",
	Sig:  shape.Func{Param: localFloats, Result: centered},
}

func floats(v value.V) ([]float64, error) {
	l, ok := v.(value.List)
	if !ok {
		return nil, errors.E(errors.Invalid, errors.Errorf("expected a list, got %s", value.Sprint(v)))
	}
	xs := make([]float64, len(l))
	for i, e := range l {
		x, ok := e.(value.Float)
		if !ok {
			return nil, errors.E(errors.Invalid, errors.Errorf("expected a float, got %s", value.Sprint(e)))
		}
		xs[i] = float64(x)
	}
	return xs, nil
}

func unmoments(v value.V) (sum float64, count int64, err error) {
	s, ok := v.(value.Struct)
	if ok && len(s) == 2 {
		sum, ok1 := s[0].V.(value.Float)
		count, ok2 := s[1].V.(value.Int)
		if ok1 && ok2 {
			return float64(sum), int64(count), nil
		}
	}
	return 0, 0, errors.E(errors.Invalid, errors.Errorf("expected moments, got %s", value.Sprint(v)))
}

func newMoments(sum float64, count int64) value.V {
	return value.Struct{{Name: "sum", V: value.Float(sum)}, {Name: "count", V: value.Int(count)}}
}

func unpair(v value.V) (value.V, value.V, error) {
	s, ok := v.(value.Struct)
	if !ok || len(s) != 2 {
		return nil, nil, errors.E(errors.Invalid, errors.Errorf("expected a pair, got %s", value.Sprint(v)))
	}
	return s[0].V, s[1].V, nil
}

var centerStages = subround.Stages{
	Reduce: &local.Func{
		Name: "center.reduce",
		Sig:  shape.Func{Param: localFloats, Result: shape.AtHub(moments)},
		Fn: func(ctx context.Context, arg value.V) (value.V, error) {
			xs, err := floats(arg)
			if err != nil {
				return nil, err
			}
			var sum float64
			for _, x := range xs {
				sum += x
			}
			return newMoments(sum, int64(len(xs))), nil
		},
	},
	Merge: &local.Func{
		Name: "center.merge",
		Sig:  shape.Func{Param: shape.Unnamed(moments, moments), Result: moments},
		Fn: func(ctx context.Context, arg value.V) (value.V, error) {
			a, b, err := unpair(arg)
			if err != nil {
				return nil, err
			}
			s1, n1, err := unmoments(a)
			if err != nil {
				return nil, err
			}
			s2, n2, err := unmoments(b)
			if err != nil {
				return nil, err
			}
			return newMoments(s1+s2, n1+n2), nil
		},
	},
	Post: &local.Func{
		Name: "center.post",
		Sig:  shape.Func{Param: shape.Unnamed(localFloats, shape.AtHub(moments)), Result: centered},
		Fn: func(ctx context.Context, arg value.V) (value.V, error) {
			a, m, err := unpair(arg)
			if err != nil {
				return nil, err
			}
			xs, err := floats(a)
			if err != nil {
				return nil, err
			}
			sum, count, err := unmoments(m)
			if err != nil {
				return nil, err
			}
			var mean float64
			if count > 0 {
				mean = sum / float64(count)
			}
			out := make(value.List, len(xs))
			for i, x := range xs {
				out[i] = value.Float(x - mean)
			}
			return value.Struct{{Name: "mean", V: value.Float(mean)}, {Name: "centered", V: out}}, nil
		},
	},
}

// compiler decomposes the center computation.
var compiler = subround.CompilerFunc(func(ctx context.Context, comp subround.Computation) (subround.Stages, error) {
	if comp.ID() != center.ID() {
		return subround.Stages{}, errors.E("compile", comp.ID(), errors.NotSupported)
	}
	return centerStages, nil
})
