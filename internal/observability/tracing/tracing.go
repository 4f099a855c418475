// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tracing times the slow steps of job configuration and control and
// reports each one as a single structured log record when it finishes.
package tracing

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/flowd-org/simctl/internal/logctx"
)

// Attribute is a key/value pair attached to a span. A zero Attribute is
// ignored.
type Attribute = slog.Attr

const (
	AttrPersistDriver = "persist.driver"
	AttrPersistOp     = "persist.op"
	AttrJobDir        = "job_dir"
	AttrModule        = "module"
	AttrSegment       = "segment"
)

func String(key, value string) Attribute      { return slog.String(key, value) }
func Int(key string, value int) Attribute     { return slog.Int(key, value) }
func Int64(key string, value int64) Attribute { return slog.Int64(key, value) }

func PersistDriver(v string) Attribute { return String(AttrPersistDriver, v) }
func PersistOp(v string) Attribute     { return String(AttrPersistOp, v) }
func Module(v string) Attribute        { return String(AttrModule, v) }
func Segment(n int) Attribute          { return Int(AttrSegment, n) }

// JobDir returns a zero Attribute for an empty dir so callers can pass it
// unconditionally.
func JobDir(dir string) Attribute {
	if dir == "" {
		return Attribute{}
	}
	return String(AttrJobDir, dir)
}

type spanKey struct{}

// Span measures one operation. Later attributes replace earlier ones with
// the same key.
type Span struct {
	name   string
	start  time.Time
	logger *slog.Logger

	mu    sync.Mutex
	attrs []slog.Attr
	err   error
	done  bool
}

// Start opens a span that reports through the logger carried by ctx.
func Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Span{name: name, start: time.Now(), logger: logctx.From(ctx)}
	s.SetAttributes(attrs...)
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the innermost span started on ctx, or nil.
func FromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) SetAttributes(attrs ...Attribute) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		if a.Key == "" {
			continue
		}
		i := slices.IndexFunc(s.attrs, func(b slog.Attr) bool { return b.Key == a.Key })
		if i >= 0 {
			s.attrs[i] = a
			continue
		}
		s.attrs = append(s.attrs, a)
	}
}

func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End logs trace.span_end at debug level, or at error level when an error
// was recorded. Only the first call has any effect.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	attrs := slices.Clone(s.attrs)
	err := s.err
	elapsed := time.Since(s.start)
	s.mu.Unlock()

	slices.SortFunc(attrs, func(a, b slog.Attr) int { return strings.Compare(a.Key, b.Key) })
	record := append([]slog.Attr{
		slog.String("span", s.name),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}, attrs...)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
		record = append(record, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(context.Background(), level, "trace.span_end", record...)
}

// End is meant for defer: it adds attrs, records *errPtr when set and ends
// the span.
func End(span *Span, errPtr *error, attrs ...Attribute) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
	if errPtr != nil {
		span.RecordError(*errPtr)
	}
	span.End()
}
