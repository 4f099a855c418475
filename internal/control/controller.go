// SPDX-License-Identifier: AGPL-3.0-or-later

// Package control drives a running simulation through files in its job
// directory. The simulation owns the status file; the controller writes
// the command file and keeps the segment ledger. Neither side locks: the
// status read is retried and every write is last-writer-wins.
package control

import (
	"github.com/flowd-org/simctl/internal/events"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/retry"
)

// Controller operates on one job directory.
type Controller struct {
	id     string
	layout job.Layout
	policy retry.Policy
	sink   events.Sink
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetry sets the status read policy.
func WithRetry(p retry.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithEvents forwards lifecycle events to sink.
func WithEvents(sink events.Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithID sets the job identifier used in events. It defaults to the
// directory path.
func WithID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// New returns a controller for the job in dir.
func New(dir string, opts ...Option) *Controller {
	c := &Controller{id: dir, layout: job.Layout(dir), policy: retry.DefaultPolicy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Layout returns the job directory layout.
func (c *Controller) Layout() job.Layout { return c.layout }

func (c *Controller) observeStatusRead(ok bool, attempts int) {
	metrics.ObserveStatusRead(ok, attempts)
}

func (c *Controller) observeCommand(kind CommandKind) {
	metrics.RecordCommand(string(kind))
	if c.sink != nil {
		c.sink.EmitCommand(c.id, string(kind))
	}
}
