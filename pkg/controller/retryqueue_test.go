package controller

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeController struct {
	authorizeCalls int
	revokeCalls    int
	extendCalls    int
	err            error
}

func (f *fakeController) Authorize(ctx context.Context, mac string, endUTC time.Time) (string, error) {
	f.authorizeCalls++
	return mac, f.err
}

func (f *fakeController) Revoke(ctx context.Context, controllerGrantID, mac string) error {
	f.revokeCalls++
	return f.err
}

func (f *fakeController) Extend(ctx context.Context, controllerGrantID, mac string, newEndUTC time.Time) error {
	f.extendCalls++
	return f.err
}

func (f *fakeController) Health(ctx context.Context) error { return f.err }

func TestQueueCallDispatchesByOpType(t *testing.T) {
	fc := &fakeController{}
	q := &Queue{controller: fc}
	end := time.Now().UTC()

	if err := q.call(context.Background(), &retryItem{OpType: opAuthorize, MAC: "aa:bb", EndUTC: &end}); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if fc.authorizeCalls != 1 {
		t.Errorf("expected 1 authorize call, got %d", fc.authorizeCalls)
	}

	if err := q.call(context.Background(), &retryItem{OpType: opRevoke, MAC: "aa:bb"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if fc.revokeCalls != 1 {
		t.Errorf("expected 1 revoke call, got %d", fc.revokeCalls)
	}

	if err := q.call(context.Background(), &retryItem{OpType: opExtend, MAC: "aa:bb", EndUTC: &end}); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if fc.extendCalls != 1 {
		t.Errorf("expected 1 extend call, got %d", fc.extendCalls)
	}
}

func TestQueueCallUnknownOpType(t *testing.T) {
	q := &Queue{controller: &fakeController{}}
	err := q.call(context.Background(), &retryItem{OpType: "BOGUS"})
	if err == nil {
		t.Fatal("expected an error for an unknown op type")
	}
}

func TestQueueCallPropagatesControllerError(t *testing.T) {
	wantErr := errors.New("controller unreachable")
	fc := &fakeController{err: wantErr}
	q := &Queue{controller: fc}

	err := q.call(context.Background(), &retryItem{OpType: opRevoke, MAC: "aa:bb"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestBackoffForAttemptIsNonDecreasingAndBounded(t *testing.T) {
	prevMin := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		// Sample several times since the policy jitters; every sample must
		// stay within the configured bounds and the floor must not fall
		// below half of the previous attempt's floor.
		var min, max time.Duration
		for i := 0; i < 20; i++ {
			d := backoffForAttempt(attempt)
			if d <= 0 {
				t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
			}
			if d > 3*time.Minute {
				t.Fatalf("attempt %d: backoff %v exceeded the configured ceiling", attempt, d)
			}
			if min == 0 || d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
		if min < prevMin/2 {
			t.Fatalf("attempt %d: backoff floor %v regressed below half of the previous attempt's floor %v", attempt, min, prevMin)
		}
		prevMin = min
	}
}
