// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAfterAttempts(t *testing.T) {
	boom := errors.New("locked")
	_, tries, err := Do(context.Background(), Policy{Attempts: 3, Delay: time.Millisecond}, func() (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if tries != 3 {
		t.Fatalf("expected 3 attempts, got %d", tries)
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	n := 0
	got, tries, err := Do(context.Background(), Policy{Attempts: 10}, func() (int, error) {
		n++
		if n < 4 {
			return 0, errors.New("not yet")
		}
		return n, nil
	})
	if err != nil || got != 4 || tries != 4 {
		t.Fatalf("got=%d tries=%d err=%v", got, tries, err)
	}
}

func TestDoPermanentStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	_, tries, err := Do(context.Background(), Policy{Attempts: 5}, func() (int, error) {
		return 0, Permanent(fatal)
	})
	if !errors.Is(err, fatal) || tries != 1 {
		t.Fatalf("tries=%d err=%v", tries, err)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	_, tries, _ := Do(context.Background(), Policy{}, func() (int, error) {
		return 0, errors.New("x")
	})
	if tries != 1 {
		t.Fatalf("expected a single attempt, got %d", tries)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, _, err := Do(ctx, Policy{Attempts: 1000, Delay: 50 * time.Millisecond}, func() (int, error) {
		return 0, errors.New("x")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retry ignored cancellation")
	}
}
