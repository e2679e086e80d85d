package detections

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	val T
	err error
}

// race runs fn under a deadline of d. Whichever settles first wins: on expiry
// the context handed to fn is cancelled and its late result is discarded.
// A result that arrives after the deadline has fired is also discarded, and a
// panic in fn comes back as an error.
func race[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
