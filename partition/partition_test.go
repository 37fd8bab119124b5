// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package partition

import (
	"testing"

	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/shape"
	"github.com/grailbio/subround/value"
	"github.com/grailbio/testutil/expect"
)

var localInts = shape.AtLocal(shape.Int)

func ints(n int) value.List {
	l := make(value.List, n)
	for i := range l {
		l[i] = value.Int(i + 1)
	}
	return l
}

func sprint(vs []value.V) []string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = value.Sprint(v)
	}
	return s
}

func TestSplit(t *testing.T) {
	for _, c := range []struct {
		v    value.V
		n    int
		want []string
	}{
		{ints(5), 2, []string{"[1, 2, 3]", "[4, 5]"}},
		{ints(5), 3, []string{"[1, 2]", "[3, 4]", "[5]"}},
		{ints(4), 4, []string{"[1]", "[2]", "[3]", "[4]"}},
		{ints(2), 5, []string{"[1]", "[2]"}},
		{ints(3), 1, []string{"[1, 2, 3]"}},
	} {
		vs, err := Split(c.v, localInts, c.n, nil)
		if err != nil {
			t.Fatal(err)
		}
		expect.EQ(t, sprint(vs), c.want)
	}
}

func TestSplitRoundTrip(t *testing.T) {
	for count := 0; count < 9; count++ {
		for k := 1; k <= 7; k++ {
			v := ints(count)
			vs, err := Split(v, localInts, k, nil)
			if err != nil {
				t.Fatal(err)
			}
			want := k
			if count < k {
				want = count
			}
			if count == 0 {
				want = 1
			}
			if got := len(vs); got != want {
				t.Errorf("count %d, k %d: got %d partitions, want %d", count, k, got, want)
			}
			var (
				total    int
				min, max = count, 0
			)
			for _, p := range vs {
				n := len(p.(value.List))
				total += n
				if n < min {
					min = n
				}
				if n > max {
					max = n
				}
			}
			if total != count {
				t.Errorf("count %d, k %d: partitions hold %d elements", count, k, total)
			}
			if count > 0 && (min == 0 || max-min > 1) {
				t.Errorf("count %d, k %d: unbalanced partitions %v", count, k, sprint(vs))
			}
			r, err := Repackage(vs, localInts)
			if err != nil {
				t.Fatal(err)
			}
			if !value.Equal(r, v) {
				t.Errorf("count %d, k %d: got %s, want %s", count, k, value.Sprint(r), value.Sprint(v))
			}
		}
	}
}

func TestSplitStruct(t *testing.T) {
	typ := shape.Struct(
		&shape.Field{Name: "x", T: localInts},
		&shape.Field{Name: "scale", T: shape.AtHub(shape.Float)},
		&shape.Field{Name: "y", T: shape.AtLocal(shape.String)},
		&shape.Field{Name: "bias", T: shape.AtLocalAllEqual(shape.Int)},
	)
	v := value.Struct{
		{Name: "x", V: ints(3)},
		{Name: "scale", V: value.Float(0.5)},
		{Name: "y", V: value.List{value.String("a"), value.String("b"), value.String("c")}},
		{Name: "bias", V: value.Int(7)},
	}
	vs, err := Split(v, typ, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, sprint(vs), []string{
		`<x=[1, 2], scale=0.5, y=["a", "b"], bias=7>`,
		`<x=[3], scale=0.5, y=["c"], bias=7>`,
	})
	r, err := Repackage(vs, typ)
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(r, v) {
		t.Errorf("got %s, want %s", value.Sprint(r), value.Sprint(v))
	}
}

func TestSplitNoLocal(t *testing.T) {
	typ := shape.Unnamed(shape.AtHub(shape.Int), shape.AtLocalAllEqual(shape.Int))
	v := value.Unnamed(value.Int(1), value.Int(2))
	vs, err := Split(v, typ, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, len(vs), 3)
	for _, p := range vs {
		expect.True(t, value.Equal(p, v))
	}
	vs, err = Split(value.Int(4), shape.Int, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, sprint(vs), []string{"4", "4"})
}

func TestSplitEmpty(t *testing.T) {
	vs, err := Split(value.List{}, localInts, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, len(vs), 1)
	expect.EQ(t, value.Sprint(vs[0]), "[]")
}

func TestSplitErrors(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Split(ints(3), localInts, n, nil)
		expect.True(t, errors.Is(errors.Configuration, err), err)
	}
	_, err := Split(value.Int(1), localInts, 2, nil)
	expect.True(t, errors.Is(errors.Partition, err), err)
	_, err = Split(value.Unnamed(ints(2), ints(3)), shape.Unnamed(localInts, localInts), 2, nil)
	expect.True(t, errors.Is(errors.Partition, err), err)
}

func TestStateNext(t *testing.T) {
	s := State{Payload: ints(5), RemainingElements: 5, RemainingPartitions: 2}
	next, err := s.Next(localInts)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, value.Sprint(next.Payload), "[1, 2, 3]")
	expect.EQ(t, next.RemainingElements, 2)
	expect.EQ(t, next.RemainingPartitions, 1)
	expect.EQ(t, next.Cursor, 3)
	// The receiver is unchanged.
	expect.EQ(t, s.Cursor, 0)
	expect.EQ(t, s.RemainingElements, 5)

	_, err = State{Payload: ints(1), RemainingElements: 4, RemainingPartitions: 1}.Next(localInts)
	expect.True(t, errors.Is(errors.Partition, err), err)
}

func TestRepackage(t *testing.T) {
	_, err := Repackage(nil, localInts)
	expect.True(t, errors.Is(errors.Partition, err), err)
	_, err = Repackage([]value.V{value.Int(1)}, localInts)
	expect.True(t, errors.Is(errors.Partition, err), err)

	typ := shape.Unnamed(shape.AtHub(shape.Float), localInts)
	r, err := Repackage([]value.V{
		value.Unnamed(value.Float(2), value.Ints(1, 2)),
		value.Unnamed(value.Float(2), value.Ints(3)),
	}, typ)
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, value.Sprint(r), "<2, [1, 2, 3]>")
}
