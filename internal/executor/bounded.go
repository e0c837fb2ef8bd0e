// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"fmt"
	"time"
)

// bounded runs fn in its own goroutine and gives up after timeout. A call
// that ignores its context keeps running in the background but no longer
// blocks the caller. Panics are returned as errors.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// boundedErr is bounded for calls without a result.
func boundedErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := bounded(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
