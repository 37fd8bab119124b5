// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pool provides decorators for pools of subround backends.
//
// Retrying and throttling are backend concerns: the scheduler never
// retries an invocation, but a backend decorated by Retry may retry
// transient failures before reporting them.
package pool

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/log"
	"github.com/grailbio/subround/value"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type retrier struct {
	subround.Backend
	policy retry.Policy
	log    *log.Logger
}

// Retry returns a backend that retries invocations of b failing with
// transient errors (see errors.Transient), waiting between tries as
// directed by policy. Once the policy is exhausted, the last error is
// returned with kind errors.TooManyTries.
func Retry(b subround.Backend, policy retry.Policy, log *log.Logger) subround.Backend {
	return &retrier{Backend: b, policy: policy, log: log}
}

// Invoke implements subround.Backend.
func (r *retrier) Invoke(ctx context.Context, comp subround.Computation, arg value.V) (v value.V, err error) {
	for retries := 0; ; retries++ {
		v, err = r.Backend.Invoke(ctx, comp, arg)
		if err == nil || !errors.Transient(err) || ctx.Err() != nil {
			return
		}
		r.log.Printf("invoke %s on %s (try %d): %v", comp.ID(), name(r.Backend), retries+1, err)
		if rerr := retry.Wait(ctx, r.policy, retries); rerr != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, errors.E("invoke", comp.ID(), errors.TooManyTries, err)
		}
	}
}

func (r *retrier) String() string { return name(r.Backend) }

type throttler struct {
	subround.Backend
	limiter *rate.Limiter
}

// Throttle returns a backend that admits invocations of b at the rate
// allowed by limiter. A limiter may be shared among backends to
// bound the invocation rate of a whole pool.
func Throttle(b subround.Backend, limiter *rate.Limiter) subround.Backend {
	return &throttler{Backend: b, limiter: limiter}
}

// Invoke implements subround.Backend.
func (t *throttler) Invoke(ctx context.Context, comp subround.Computation, arg value.V) (value.V, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, errors.E("invoke", comp.ID(), err)
	}
	return t.Backend.Invoke(ctx, comp, arg)
}

func (t *throttler) String() string { return name(t.Backend) }

// Unwrap returns the backend decorated by b, or nil if b is not a
// decorator.
func Unwrap(b subround.Backend) subround.Backend {
	switch b := b.(type) {
	case *retrier:
		return b.Backend
	case *throttler:
		return b.Backend
	default:
		return nil
	}
}

// Close closes, concurrently, each backend (or decorated backend)
// that implements io.Closer. It returns the first error encountered.
func Close(backends []subround.Backend) error {
	var g errgroup.Group
	for _, b := range backends {
		for ; b != nil; b = Unwrap(b) {
			if c, ok := b.(io.Closer); ok {
				b := b
				g.Go(func() error {
					if err := c.Close(); err != nil {
						return errors.E("close", name(b), err)
					}
					return nil
				})
				break
			}
		}
	}
	return g.Wait()
}

func name(b subround.Backend) string {
	if s, ok := b.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", b)
}
