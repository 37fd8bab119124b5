// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package value defines the runtime representation of shaped values.
// The structures in this package mirror those in package shape:
//
//	scalar shapes                Int, Float, String, Bool
//	struct shapes                Struct
//	non-all-equal local shapes   List (one element per distributed element)
//	hub and all-equal shapes     the single element value itself
//
// V is a closed union: only the types in this package implement it.
// A nil V denotes an absent value.
package value

import (
	"crypto"
	_ "crypto/sha256" // Digester requires SHA-256.
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/digest"
)

// Digester is the digester used to compute value digests.
var Digester = digest.Digester(crypto.SHA256)

// Kind enumerates the variants of V.
type Kind int

const (
	IntKind Kind = iota
	FloatKind
	StringKind
	BoolKind
	StructKind
	ListKind
)

// V is a runtime value.
type V interface {
	// Kind returns the value's variant.
	Kind() Kind
}

type (
	// Int is an integer scalar.
	Int int64
	// Float is a floating point scalar.
	Float float64
	// String is a string scalar.
	String string
	// Bool is a boolean scalar.
	Bool bool
)

func (Int) Kind() Kind    { return IntKind }
func (Float) Kind() Kind  { return FloatKind }
func (String) Kind() Kind { return StringKind }
func (Bool) Kind() Kind   { return BoolKind }

// Field is an optionally named struct member.
type Field struct {
	Name string
	V    V
}

// Struct is an ordered collection of fields.
type Struct []Field

// Kind implements V.
func (Struct) Kind() Kind { return StructKind }

// Pair returns the unnamed two-field struct (a, b).
func Pair(a, b V) Struct {
	return Struct{{V: a}, {V: b}}
}

// Unnamed returns an unnamed struct of the provided values.
func Unnamed(vs ...V) Struct {
	s := make(Struct, len(vs))
	for i, v := range vs {
		s[i].V = v
	}
	return s
}

// List holds the physical values of a distributed value, one per
// element.
type List []V

// Kind implements V.
func (List) Kind() Kind { return ListKind }

// Ints returns a list of integer values.
func Ints(xs ...int64) List {
	l := make(List, len(xs))
	for i, x := range xs {
		l[i] = Int(x)
	}
	return l
}

// Floats returns a list of floating point values.
func Floats(xs ...float64) List {
	l := make(List, len(xs))
	for i, x := range xs {
		l[i] = Float(x)
	}
	return l
}

// Equal tells whether values v and w are identical. Struct field
// names participate in equality.
func Equal(v, w V) bool {
	if v == nil || w == nil {
		return v == nil && w == nil
	}
	if v.Kind() != w.Kind() {
		return false
	}
	switch v := v.(type) {
	case Struct:
		w := w.(Struct)
		if len(v) != len(w) {
			return false
		}
		for i := range v {
			if v[i].Name != w[i].Name || !Equal(v[i].V, w[i].V) {
				return false
			}
		}
		return true
	case List:
		w := w.(List)
		if len(v) != len(w) {
			return false
		}
		for i := range v {
			if !Equal(v[i], w[i]) {
				return false
			}
		}
		return true
	default:
		return v == w
	}
}

// Sprint returns a human-readable rendering of value v.
func Sprint(v V) string {
	var b strings.Builder
	sprint(&b, v)
	return b.String()
}

func sprint(b *strings.Builder, v V) {
	switch v := v.(type) {
	case nil:
		b.WriteString("<nil>")
	case Int:
		b.WriteString(strconv.FormatInt(int64(v), 10))
	case Float:
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case String:
		b.WriteString(strconv.Quote(string(v)))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(v)))
	case Struct:
		b.WriteString("<")
		for i, f := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			if f.Name != "" {
				b.WriteString(f.Name + "=")
			}
			sprint(b, f.V)
		}
		b.WriteString(">")
	case List:
		b.WriteString("[")
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			sprint(b, e)
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

// Digest computes a digest of value v, suitable for identifying
// subround arguments in logs and caches.
func Digest(v V) digest.Digest {
	w := Digester.NewWriter()
	WriteDigest(w, v)
	return w.Digest()
}

// WriteDigest writes digest material for value v to w.
func WriteDigest(w io.Writer, v V) {
	if v == nil {
		writeTag(w, 0xff)
		return
	}
	writeTag(w, byte(v.Kind()))
	switch v := v.(type) {
	case Int:
		writeUint(w, uint64(v))
	case Float:
		writeUint(w, math.Float64bits(float64(v)))
	case String:
		writeString(w, string(v))
	case Bool:
		if v {
			writeTag(w, 1)
		} else {
			writeTag(w, 0)
		}
	case Struct:
		writeUint(w, uint64(len(v)))
		for _, f := range v {
			writeString(w, f.Name)
			WriteDigest(w, f.V)
		}
	case List:
		writeUint(w, uint64(len(v)))
		for _, e := range v {
			WriteDigest(w, e)
		}
	}
}

func writeTag(w io.Writer, b byte) {
	_, _ = w.Write([]byte{b})
}

func writeUint(w io.Writer, x uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	_, _ = w.Write(b[:])
}

func writeString(w io.Writer, s string) {
	writeUint(w, uint64(len(s)))
	_, _ = io.WriteString(w, s)
}
