package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxscribe/worker/internal/model"
)

func TestPersistSegmentsFirstAttemptSucceeds(t *testing.T) {
	gw := &stubGateway{base: "http://a/api"}
	w := newTestWorker(testConfig(), gw)
	var slept []time.Duration
	w.sleep = func(d time.Duration) { slept = append(slept, d) }

	ok := w.persistSegments(context.Background(), gw, &model.Job{ID: "j1", MediaFileID: "m1"}, []model.Segment{{Idx: 0, EndMs: 100, Text: "x"}})
	if !ok {
		t.Fatal("expected success")
	}
	if len(slept) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", slept)
	}
	if len(gw.failed) != 0 {
		t.Errorf("unexpected fail calls: %v", gw.failed)
	}
}

func TestPersistSegmentsRetriesWithDoublingBackoff(t *testing.T) {
	calls := 0
	gw := &stubGateway{base: "http://a/api", postSegmentsFn: func(ctx context.Context, mediaID string, segments []model.Segment) (int, error) {
		calls++
		return 0, errors.New("disk full")
	}}
	w := newTestWorker(testConfig(), gw)
	var slept []time.Duration
	w.sleep = func(d time.Duration) { slept = append(slept, d) }

	ok := w.persistSegments(context.Background(), gw, &model.Job{ID: "j1", MediaFileID: "m1"}, nil)
	if ok {
		t.Fatal("expected failure after exhaustion")
	}
	if calls != defaultPersistAttempts {
		t.Errorf("post calls = %d, want %d", calls, defaultPersistAttempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
	if len(gw.failed) != 1 || gw.failed[0] != "j1" {
		t.Fatalf("failed = %v, want [j1]", gw.failed)
	}
	if gw.failMsgs[0] == "" || !strings.Contains(gw.failMsgs[0], "disk full") {
		t.Errorf("fail message = %q, want non-empty with cause", gw.failMsgs[0])
	}
}

func TestPersistSegmentsRecoversMidRetry(t *testing.T) {
	calls := 0
	gw := &stubGateway{base: "http://a/api", postSegmentsFn: func(ctx context.Context, mediaID string, segments []model.Segment) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return len(segments), nil
	}}
	w := newTestWorker(testConfig(), gw)
	var slept []time.Duration
	w.sleep = func(d time.Duration) { slept = append(slept, d) }

	ok := w.persistSegments(context.Background(), gw, &model.Job{ID: "j1", MediaFileID: "m1"}, nil)
	if !ok {
		t.Fatal("expected eventual success")
	}
	if len(slept) != 2 {
		t.Errorf("sleeps = %v, want two backoffs before the third attempt", slept)
	}
	if len(gw.failed) != 0 {
		t.Errorf("unexpected fail calls: %v", gw.failed)
	}
}
