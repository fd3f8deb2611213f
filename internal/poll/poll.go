/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package poll waits for eventually consistent state with a fixed interval
// and a bounded number of attempts.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
)

// ErrNotReady is returned when every attempt ran without the condition
// becoming true.
var ErrNotReady = errors.New("condition not met")

// Config configures Until.
type Config struct {
	// Attempts is the total number of condition checks (default: 5).
	Attempts int
	// Interval is the sleep between checks (default: 5s).
	Interval time.Duration
}

// Validate checks that the configuration has valid values.
func (c Config) Validate() error {
	if c.Attempts < 1 {
		return errors.New("attempts must be at least 1")
	}
	if c.Interval < 0 {
		return errors.New("interval cannot be negative")
	}
	return nil
}

// DefaultConfig returns the wait used after merging a pull request.
func DefaultConfig() Config {
	return Config{
		Attempts: 5,
		Interval: 5 * time.Second,
	}
}

// Until calls cond until it reports true, returns an error, or the attempts
// are exhausted. The interval between attempts is constant.
func Until(ctx context.Context, cfg Config, operation string, cond func(context.Context) (bool, error)) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid poll config: %w", err)
	}

	for attempt := 1; ; attempt++ {
		done, err := cond(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
		if done {
			return nil
		}

		if attempt >= cfg.Attempts {
			return fmt.Errorf("%s after %d attempts: %w", operation, cfg.Attempts, ErrNotReady)
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt).
			With("max_attempts", cfg.Attempts).
			With("interval", cfg.Interval).
			Info("Condition not met yet, waiting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
