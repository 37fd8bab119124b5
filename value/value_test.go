// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package value

import "testing"

func TestEqual(t *testing.T) {
	for _, c := range []struct {
		v, w V
		want bool
	}{
		{Int(1), Int(1), true},
		{Int(1), Float(1), false},
		{Ints(1, 2), Ints(1, 2), true},
		{Ints(1, 2), Ints(1), false},
		{List{}, List(nil), true},
		{Pair(Int(1), String("x")), Pair(Int(1), String("x")), true},
		{Pair(Int(1), String("x")), Struct{{Name: "a", V: Int(1)}, {V: String("x")}}, false},
		{nil, nil, true},
		{nil, Int(0), false},
	} {
		if got := Equal(c.v, c.w); got != c.want {
			t.Errorf("Equal(%s, %s): got %v, want %v", Sprint(c.v), Sprint(c.w), got, c.want)
		}
	}
}

func TestSprint(t *testing.T) {
	v := Struct{{Name: "mean", V: Float(2.5)}, {V: Ints(1, 2)}, {V: Bool(true)}, {V: String("a")}}
	if got, want := Sprint(v), `<mean=2.5, [1, 2], true, "a">`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDigest(t *testing.T) {
	a := Pair(Ints(1, 2, 3), Float(1))
	b := Pair(Ints(1, 2, 3), Float(1))
	if Digest(a) != Digest(b) {
		t.Error("equal values must have equal digests")
	}
	for _, other := range []V{
		Pair(Ints(1, 2), Float(1)),
		Pair(Ints(1, 2, 3), Int(1)),
		Struct{{Name: "x", V: Ints(1, 2, 3)}, {V: Float(1)}},
		List{Ints(1, 2, 3), Float(1)},
		nil,
	} {
		if Digest(a) == Digest(other) {
			t.Errorf("%s and %s share a digest", Sprint(a), Sprint(other))
		}
	}
}
