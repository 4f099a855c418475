// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts int           `yaml:"attempts" json:"attempts"`
	Delay    time.Duration `yaml:"delay" json:"delay"`
}

// DefaultPolicy tolerates a writer holding the file for up to about a second.
var DefaultPolicy = Policy{Attempts: 1000, Delay: time.Millisecond}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. It reports how many attempts were made.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, int, error) {
	p = p.normalized()
	tries := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		return op()
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.Attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return res, tries, err
}
