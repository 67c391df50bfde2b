package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes how a failing operation is retried.
type Policy struct {
	// Retries is the number of extra attempts after the first call fails.
	Retries int

	// Base is the delay before the first retry; it doubles on each later retry
	// until it reaches Max.
	Base time.Duration
	Max  time.Duration

	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64

	// Retryable reports whether err is worth another attempt. Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each retry sleep with the retry number (from 1).
	OnRetry func(retry int, err error)
}

// DownloadPolicy is the policy for extract downloads: retries extra attempts
// on 429, 5xx, and network errors.
func DownloadPolicy(retries int) Policy {
	if retries < 0 {
		retries = 0
	}
	return Policy{
		Retries: retries,
		Base:    time.Second,
		Max:     30 * time.Second,
		Jitter:  0.25,
		OnRetry: RetryLogger("fetcher", "download"),
	}
}

// StoragePolicy is the policy for one record's transaction. Only lock,
// serialization, and connection errors are retried.
func StoragePolicy() Policy {
	return Policy{
		Retries:   2,
		Base:      50 * time.Millisecond,
		Max:       time.Second,
		Jitter:    0.25,
		Retryable: IsTransientStorage,
		OnRetry:   RetryLogger("collector.reconcile", "record tx"),
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// retries, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that produce a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	for retry := 0; ; retry++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if retry >= p.Retries || ctx.Err() != nil || !p.Retryable(err) {
			return val, err
		}

		if p.OnRetry != nil {
			p.OnRetry(retry+1, err)
		}

		timer := time.NewTimer(p.delay(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return val, err
		case <-timer.C:
		}
	}
}

func (p Policy) normalized() Policy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Base <= 0 {
		p.Base = time.Second
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay is the sleep before retry n (0-based): Base doubled n times, capped
// at Max, then jittered.
func (p Policy) delay(n int) time.Duration {
	d := p.Base
	for i := 0; i < n && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(component, operation string) func(int, error) {
	return func(retry int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
}
