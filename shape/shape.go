// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shape describes how values are distributed. A shape is one of:
//
//	int, float, string, bool                   scalar shapes
//	<name1 t1, name2 t2, ..., tn>              structs of (optionally named) fields
//	t@local                                    one value of shape t per distributed element
//	t@local*                                   a single value of shape t shared by every element
//	t@hub                                      a single value of shape t placed at the hub
//
// Hub values always carry exactly one physical value; the all-equal
// flag is implied. A distributed shape never directly nests another
// distributed shape; this is the responsibility of whoever produces
// shapes and is not checked here.
//
// Shapes are immutable once constructed and may be shared freely.
package shape

import (
	"fmt"
	"strings"
)

// Kind represents a shape's kind.
type Kind int

const (
	// ScalarKind is the kind of undistributed leaf values.
	ScalarKind Kind = iota
	// StructKind is the kind of ordered collections of fields.
	StructKind
	// DistributedKind is the kind of values placed at a site.
	DistributedKind
)

func (k Kind) String() string {
	switch k {
	case ScalarKind:
		return "scalar"
	case StructKind:
		return "struct"
	case DistributedKind:
		return "distributed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Site is a distribution site.
type Site int

const (
	// Local is the site of the (unbounded) set of distributed elements.
	Local Site = iota
	// Hub is the site holding exactly one physical value.
	Hub
)

func (s Site) String() string {
	switch s {
	case Local:
		return "local"
	case Hub:
		return "hub"
	default:
		return fmt.Sprintf("site(%d)", int(s))
	}
}

// A Field is an optionally named shape. It is used in structs.
type Field struct {
	Name string
	*T
}

func (f *Field) String() string {
	if f.Name == "" {
		return f.T.String()
	}
	return f.Name + " " + f.T.String()
}

// A T is a shape.
type T struct {
	// Kind is the kind of the shape.
	Kind Kind
	// Name names a scalar shape, e.g., "int".
	Name string
	// Fields stores a struct's fields, in order.
	Fields []*Field
	// Site is the distribution site of a distributed shape.
	Site Site
	// AllEqual is set for distributed shapes whose elements all
	// share a single logical value.
	AllEqual bool
	// Elem is the element shape of a distributed shape.
	Elem *T
}

// Convenience vars for common scalar shapes.
var (
	Int    = Scalar("int")
	Float  = Scalar("float")
	String = Scalar("string")
	Bool   = Scalar("bool")
)

// Scalar returns a new scalar shape with the given name.
func Scalar(name string) *T {
	return &T{Kind: ScalarKind, Name: name}
}

// Struct returns a new struct shape with the given fields.
func Struct(fields ...*Field) *T {
	return &T{Kind: StructKind, Fields: fields}
}

// Unnamed returns a new struct shape with unnamed fields of the
// provided shapes.
func Unnamed(elems ...*T) *T {
	fields := make([]*Field, len(elems))
	for i, elem := range elems {
		fields[i] = &Field{T: elem}
	}
	return Struct(fields...)
}

// Distributed returns a new distributed shape. Hub shapes are always
// all-equal.
func Distributed(site Site, allEqual bool, elem *T) *T {
	if site == Hub {
		allEqual = true
	}
	return &T{Kind: DistributedKind, Site: site, AllEqual: allEqual, Elem: elem}
}

// AtHub returns the shape of a single hub-placed value of shape elem.
func AtHub(elem *T) *T {
	return Distributed(Hub, true, elem)
}

// AtLocal returns the shape of one value of shape elem per
// distributed element.
func AtLocal(elem *T) *T {
	return Distributed(Local, false, elem)
}

// AtLocalAllEqual returns the shape of a single value of shape elem
// replicated across every distributed element.
func AtLocalAllEqual(elem *T) *T {
	return Distributed(Local, true, elem)
}

// String renders the shape in the notation described in the package
// documentation. The nil shape renders as "<nil>".
func (t *T) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case ScalarKind:
		return t.Name
	case StructKind:
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.String()
		}
		return "<" + strings.Join(fields, ", ") + ">"
	case DistributedKind:
		s := t.Elem.String() + "@" + t.Site.String()
		if t.Site == Local && t.AllEqual {
			s += "*"
		}
		return s
	default:
		return "error"
	}
}

// Equal tests whether shape t is identical to shape u, including
// field names.
func (t *T) Equal(u *T) bool {
	if t == nil || u == nil {
		return t == u
	}
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case ScalarKind:
		return t.Name == u.Name
	case StructKind:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != u.Fields[i].Name || !t.Fields[i].T.Equal(u.Fields[i].T) {
				return false
			}
		}
		return true
	case DistributedKind:
		return t.Site == u.Site && t.AllEqual == u.AllEqual && t.Elem.Equal(u.Elem)
	}
	return false
}

// AssignableFrom tells whether a value of shape u may be used where
// shape t is expected. Assignability is structural: struct fields are
// compared positionally, and an unnamed field may be assigned to a
// named one (but two differing names never match). A distributed
// shape that is all-equal accepts only all-equal sources. The nil
// shape is assignable only from the nil shape.
func (t *T) AssignableFrom(u *T) bool {
	if t == nil || u == nil {
		return t == u
	}
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case ScalarKind:
		return t.Name == u.Name
	case StructKind:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i, tf := range t.Fields {
			uf := u.Fields[i]
			if tf.Name != "" && uf.Name != "" && tf.Name != uf.Name {
				return false
			}
			if !tf.T.AssignableFrom(uf.T) {
				return false
			}
		}
		return true
	case DistributedKind:
		if t.Site != u.Site {
			return false
		}
		if t.AllEqual && !u.AllEqual {
			return false
		}
		return t.Elem.AssignableFrom(u.Elem)
	}
	return false
}

// Contains tells whether pred holds for t or any shape nested in t.
func (t *T) Contains(pred func(*T) bool) bool {
	if t == nil {
		return false
	}
	if pred(t) {
		return true
	}
	switch t.Kind {
	case StructKind:
		for _, f := range t.Fields {
			if f.T.Contains(pred) {
				return true
			}
		}
	case DistributedKind:
		return t.Elem.Contains(pred)
	}
	return false
}

// ContainsOnly tells whether pred holds for t and every shape nested
// in t.
func (t *T) ContainsOnly(pred func(*T) bool) bool {
	return !t.Contains(func(u *T) bool { return !pred(u) })
}

// IsAt returns a predicate that holds for distributed shapes at the
// provided site.
func IsAt(site Site) func(*T) bool {
	return func(t *T) bool {
		return t.Kind == DistributedKind && t.Site == site
	}
}

// Func is the signature of a computation. A nil Param indicates a
// computation that takes no argument.
type Func struct {
	Param  *T
	Result *T
}

func (f Func) String() string {
	if f.Param == nil {
		return "( -> " + f.Result.String() + ")"
	}
	return "(" + f.Param.String() + " -> " + f.Result.String() + ")"
}
