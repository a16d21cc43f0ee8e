package jobstore

import (
	"testing"
	"time"

	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/types"
)

func TestStoreSetGetDelete(t *testing.T) {
	t.Parallel()

	s := New(time.Hour)
	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get on empty store returned a value")
	}

	s.Set("run-1", pipeline.Status{State: types.StateProcessing, Progress: 0.5})
	got, ok := s.Get("run-1")
	if !ok || got.State != types.StateProcessing || got.Progress != 0.5 {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	s.Set("run-1", pipeline.Status{State: types.StateCompleted, Progress: 1})
	got, _ = s.Get("run-1")
	if got.State != types.StateCompleted {
		t.Errorf("latest status not returned: %+v", got)
	}

	s.Delete("run-1")
	if _, ok := s.Get("run-1"); ok {
		t.Error("deleted run still present")
	}
}

func TestStoreEntriesExpire(t *testing.T) {
	t.Parallel()

	s := New(10 * time.Millisecond)
	s.Set("run-1", pipeline.Status{State: types.StateCompleted})

	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Get("run-1"); ok {
		t.Fatal("status survived past its TTL")
	}
}

func TestResultsRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewResults(time.Hour)
	segs := []types.MergedSegment{{Start: 0, End: 5, Text: "hello"}}
	r.Set("run-1", segs)

	got, ok := r.Get("run-1")
	if !ok || len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if _, ok := r.Get("run-2"); ok {
		t.Error("unknown run returned a transcript")
	}
}
