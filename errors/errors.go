// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors defines the errors raised while validating forms,
// preparing rounds and running them. Each error carries a kind, the
// operation that failed with its arguments, and optionally the
// underlying error that caused it.
//
// Kinds are grouped into classes: structural errors are raised while
// validating a three-stage form, configuration errors while preparing
// a round, and invocation errors while running one. Structural and
// configuration errors are never transient; Transient tells a backend
// decorator which failures are worth retrying.
//
// Package errors provides functions Errorf and New as convenience
// constructors, so that users need import only one error package.
package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/subround/log"
)

// Separator is inserted between chained *Errors while rendering.
var Separator = ":\n\t"

// Kind classifies an error.
type Kind int

const (
	// Other denotes an unclassified error.
	Other Kind = iota
	// Canceled denotes a cancellation error.
	Canceled
	// Timeout denotes a timeout error.
	Timeout
	// Temporary denotes a transient error.
	Temporary
	// Unavailable denotes that a backend is temporarily unavailable.
	Unavailable
	// NotSupported indicates the operation was not supported.
	NotSupported
	// TooManyTries indicates that the operation was retried too many times.
	TooManyTries
	// Invalid indicates an invalid state or data.
	Invalid
	// Fatal denotes an unrecoverable error.
	Fatal

	// ReduceResult indicates that a form's reduce stage does not
	// produce a single hub-placed value.
	ReduceResult
	// MergeNotAssignable indicates that a form's merge stage cannot be
	// iterated over pairs of reduce results.
	MergeNotAssignable
	// PostParameter indicates that a form's post stage cannot accept
	// the original argument together with the merged result.
	PostParameter
	// NestedAggregation indicates that a form's post stage performs its
	// own local-to-hub aggregation.
	NestedAggregation

	// Partition indicates a malformed or missing distributed argument.
	Partition
	// Invocation indicates that a backend invocation failed during a
	// round.
	Invocation

	// NoCompiler indicates that a raw computation was invoked without a
	// configured compiler.
	NoCompiler
	// CompilationShape indicates that the compiler did not produce a
	// valid three-stage form.
	CompilationShape
	// Configuration indicates an invalid engine configuration.
	Configuration

	maxKind
)

var kindMessages = [maxKind]string{
	Other:              "unknown error",
	Canceled:           "canceled",
	Timeout:            "timeout",
	Temporary:          "temporary",
	Unavailable:        "unavailable",
	NotSupported:       "operation not supported",
	TooManyTries:       "too many tries",
	Invalid:            "invalid",
	Fatal:              "fatal",
	ReduceResult:       "reduce result is not a single hub value",
	MergeNotAssignable: "merge is not pairwise iterable",
	PostParameter:      "post parameter mismatch",
	NestedAggregation:  "nested aggregation in post",
	Partition:          "partition error",
	Invocation:         "invocation failure",
	NoCompiler:         "no compiler configured",
	CompilationShape:   "compiler produced an invalid form",
	Configuration:      "configuration error",
}

// String renders a human-readable description of kind k.
func (k Kind) String() string {
	if k < Other || k >= maxKind {
		return kindMessages[Other]
	}
	return kindMessages[k]
}

// Structural tells whether kind k is raised by three-stage form
// validation.
func (k Kind) Structural() bool {
	return k >= ReduceResult && k <= NestedAggregation
}

// Configurational tells whether kind k denotes a configuration error.
func (k Kind) Configurational() bool {
	return k >= NoCompiler && k <= Configuration
}

// Transient tells whether k denotes a failure that may succeed when
// retried.
func (k Kind) Transient() bool {
	switch k {
	case Canceled, Timeout, Temporary, TooManyTries, Unavailable:
		return true
	}
	return false
}

// Error is a subround error: the failure of an operation (with
// arguments), classified by kind, and possibly caused by another
// error.
//
// Errors should be constructed by errors.E.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Op is a one-word description of the operation that errored.
	Op string
	// Arg is an (optional) list of arguments to the operation.
	Arg []string
	// Err is this error's underlying error: this error is caused
	// by Err.
	Err error
}

// E constructs an error from its arguments, each of which must be
// one of the following types:
//
//	string
//		The first string argument is taken as the error's Op; subsequent
//		arguments are taken as the error's Arg.
//	Kind
//		Taken as the error's Kind.
//	error
//		Taken as the error's underlying error.
//
// Without an explicit Kind, the kind is derived from the underlying
// error: an *Error passes its kind up the chain; context.Canceled
// maps to Canceled and context.DeadlineExceeded to Timeout; errors
// reporting Timeout() or Temporary() map to Timeout and Temporary.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	e := new(Error)
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if e.Op == "" {
				e.Op = arg
			} else {
				e.Arg = append(e.Arg, arg)
			}
		case Kind:
			e.Kind = arg
		case *Error:
			cause := *arg
			e.Err = &cause
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call (type %T) from %s:%d: %v", arg, file, line, args)
			e.Arg = append(e.Arg, fmt.Sprintf("illegal (%T %v)", arg, arg))
		}
	}
	switch cause := e.Err.(type) {
	case nil:
	case *Error:
		// The kind is reported once, at the outermost error that
		// carries it.
		if e.Kind == Other || e.Kind == cause.Kind {
			e.Kind = cause.Kind
			cause.Kind = Other
		}
		if cause.Op == "" && cause.Kind == Other && len(cause.Arg) == 0 {
			e.Err = cause.Err
		}
	default:
		if e.Kind == Other {
			e.Kind = kindOf(cause)
		}
	}
	return e
}

func kindOf(err error) Kind {
	switch {
	case err == context.Canceled:
		return Canceled
	case err == context.DeadlineExceeded:
		return Timeout
	case os.IsTimeout(err):
		return Timeout
	case os.IsNotExist(err):
		return Invalid
	}
	if t, ok := err.(interface{ Temporary() bool }); ok && t.Temporary() {
		return Temporary
	}
	return Other
}

// Error renders this error and its chain of underlying errors,
// separated by Separator.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	sep := func(s string) {
		if b.Len() > 0 {
			b.WriteString(s)
		}
	}
	if e.Op != "" {
		b.WriteString(strings.Join(append([]string{e.Op}, e.Arg...), " "))
	}
	if e.Kind != Other {
		sep(": ")
		b.WriteString(e.Kind.String())
	}
	switch cause := e.Err.(type) {
	case nil:
	case *Error:
		sep(Separator)
		b.WriteString(cause.Error())
	default:
		sep(": ")
		b.WriteString(cause.Error())
	}
	return b.String()
}

// Unwrap returns the error's underlying error, so that errors.As
// can reach typed causes such as invocation failures.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf is an alternate spelling of fmt.Errorf.
var Errorf = fmt.Errorf

// New is an alternate spelling of errors.New.
var New = goerrors.New

// As is an alternate spelling of errors.As.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// Recover returns err as an *Error, wrapping it if it is not one.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return E(err).(*Error)
}

// Is tells whether err has the provided kind. Errors of kind Other
// are looked through to the first classified error in their chain.
func Is(kind Kind, err error) bool {
	for e := Recover(err); e != nil; {
		if e.Kind != Other {
			return e.Kind == kind
		}
		cause, ok := e.Err.(*Error)
		if !ok {
			return false
		}
		e = cause
	}
	return false
}

// Transient tells whether error err is likely transient, and thus may
// be usefully retried by a backend.
func Transient(err error) bool {
	return err != nil && Recover(err).Kind.Transient()
}
