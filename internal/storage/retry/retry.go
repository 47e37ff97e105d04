// Package retry wraps store connection attempts in exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DefaultMaxTries is used when a caller passes zero tries.
const DefaultMaxTries = 5

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, ctx ends or maxTries is reached.
func Do[T any](ctx context.Context, log *zap.Logger, name string, maxTries uint, op func() (T, error)) (T, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if maxTries == 0 {
		maxTries = DefaultMaxTries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	notify := func(err error, wait time.Duration) {
		log.Warn("connect failed, retrying",
			zap.String("target", name),
			zap.Error(err),
			zap.Duration("backoff", wait))
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(notify))
}
