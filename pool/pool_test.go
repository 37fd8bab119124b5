// Copyright 2021 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/grailbio/subround"
	"github.com/grailbio/subround/errors"
	"github.com/grailbio/subround/pool"
	"github.com/grailbio/subround/test/testutil"
	"github.com/grailbio/subround/value"
	"github.com/grailbio/testutil/expect"
	"golang.org/x/time/rate"
)

var policy = retry.MaxRetries(retry.Backoff(time.Millisecond, time.Millisecond, 1), 3)

func flaky(failures int, kind errors.Kind) *testutil.Backend {
	b := testutil.NewBackends(1)[0]
	var (
		mu sync.Mutex
		n  int
	)
	b.Fail = func(string, value.V) error {
		mu.Lock()
		defer mu.Unlock()
		if n < failures {
			n++
			return errors.E(kind, errors.New("flaky"))
		}
		return nil
	}
	return b
}

func TestRetry(t *testing.T) {
	f := testutil.Sum()
	b := flaky(2, errors.Unavailable)
	v, err := pool.Retry(b, policy, nil).Invoke(context.Background(), f.Reduce(), value.Ints(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	expect.EQ(t, value.Sprint(v), "3")
	expect.EQ(t, b.CallsTo(testutil.SumReduce), 3)
}

func TestRetryExhausted(t *testing.T) {
	f := testutil.Sum()
	b := flaky(10, errors.Temporary)
	_, err := pool.Retry(b, policy, nil).Invoke(context.Background(), f.Reduce(), value.Ints(1))
	expect.True(t, errors.Is(errors.TooManyTries, err), err)
	if n := b.CallsTo(testutil.SumReduce); n < 3 || n > 4 {
		t.Errorf("got %d tries", n)
	}
}

func TestRetryPermanent(t *testing.T) {
	f := testutil.Sum()
	b := flaky(1, errors.Fatal)
	_, err := pool.Retry(b, policy, nil).Invoke(context.Background(), f.Reduce(), value.Ints(1))
	expect.True(t, errors.Is(errors.Fatal, err), err)
	expect.EQ(t, b.CallsTo(testutil.SumReduce), 1)
}

func TestThrottle(t *testing.T) {
	f := testutil.Sum()
	b := testutil.NewBackends(1)[0]
	lim := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	tb := pool.Throttle(b, lim)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := tb.Invoke(context.Background(), f.Reduce(), value.Ints(1)); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("three throttled invocations took %s", elapsed)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Throttle(b, rate.NewLimiter(rate.Every(time.Hour), 1)).Invoke(ctx, f.Reduce(), value.Ints(1))
	expect.True(t, err != nil)
}

type closer struct {
	*testutil.Backend
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestClose(t *testing.T) {
	bs := testutil.NewBackends(3)
	c1 := &closer{Backend: bs[0]}
	c2 := &closer{Backend: bs[1], err: errors.New("close failed")}
	backends := []subround.Backend{
		pool.Retry(pool.Throttle(c1, rate.NewLimiter(rate.Inf, 1)), policy, nil),
		c2,
		bs[2],
	}
	err := pool.Close(backends)
	expect.HasSubstr(t, err.Error(), "close failed")
	expect.True(t, c1.closed)
	expect.True(t, c2.closed)
	expect.True(t, pool.Unwrap(bs[2]) == nil)
}
