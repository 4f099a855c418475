// SPDX-License-Identifier: AGPL-3.0-or-later
package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func makeJob(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config"), []byte("run_length: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverNestedJobs(t *testing.T) {
	root := t.TempDir()
	makeJob(t, filepath.Join(root, "spinup"))
	makeJob(t, filepath.Join(root, "experiments", "co2x2"))
	makeJob(t, filepath.Join(root, "experiments", "co2x4"))
	// A job's own output must not be mistaken for nested jobs.
	makeJob(t, filepath.Join(root, "spinup", "output", "fake"))
	makeJob(t, filepath.Join(root, ModelsDir, "DEVELOPMENT"))
	if err := os.MkdirAll(filepath.Join(root, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var ids []string
	for _, j := range res.Jobs {
		ids = append(ids, j.ID)
		if j.Kind != KindJob {
			t.Fatalf("unexpected kind %s", j.Kind)
		}
	}
	if got := strings.Join(ids, ","); got != "experiments/co2x2,experiments/co2x4,spinup" {
		t.Fatalf("unexpected jobs %s", got)
	}
	if len(res.Folders) != 1 || res.Folders[0].ID != "scratch" {
		t.Fatalf("unexpected folders %+v", res.Folders)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	res, err := Discover(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Jobs) != 0 {
		t.Fatalf("expected no jobs, got %+v", res.Jobs)
	}
}

func TestDiscoverRootIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Discover(path); err == nil {
		t.Fatalf("expected error for file root")
	}
}

func TestCollectKeepsOrderAndLimit(t *testing.T) {
	jobs := []Entry{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	var inFlight, peak atomic.Int32
	out, err := Collect(context.Background(), jobs, 2, func(ctx context.Context, e Entry) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return strings.ToUpper(e.ID), nil
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if strings.Join(out, "") != "ABCD" {
		t.Fatalf("unexpected order %v", out)
	}
	if peak.Load() > 2 {
		t.Fatalf("limit exceeded: %d", peak.Load())
	}
}

func TestCollectReturnsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Collect(context.Background(), []Entry{{ID: "a"}, {ID: "b"}}, 0, func(ctx context.Context, e Entry) (int, error) {
		if e.ID == "b" {
			return 0, boom
		}
		return 1, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "b:") {
		t.Fatalf("error should name the job: %v", err)
	}
}
