// SPDX-License-Identifier: AGPL-3.0-or-later

package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowd-org/simctl/internal/logctx"
)

func TestSpanLogsAttributesOnce(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), logctx.New("debug", "text", &buf))

	ctx, span := Start(ctx, "configure", JobDir("/jobs/demo"), Module("goldstein"), JobDir(""))
	if FromContext(ctx) != span {
		t.Fatalf("span not stored in context")
	}
	span.End()
	span.End()

	out := buf.String()
	if strings.Count(out, "trace.span_end") != 1 {
		t.Fatalf("expected one record, got %q", out)
	}
	for _, want := range []string{"span=configure", "job_dir=/jobs/demo", "module=goldstein"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestEndRecordsError(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), logctx.New("error", "text", &buf))
	_, span := Start(ctx, "archive", Segment(2))
	err := errors.New("disk full")
	End(span, &err)
	if !strings.Contains(buf.String(), "disk full") || !strings.Contains(buf.String(), "segment=2") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	var span *Span
	span.SetAttributes(Module("x"))
	span.End()
	End(nil, nil)
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no span")
	}
}
