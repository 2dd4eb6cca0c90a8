package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

func TestQueueStore_InsertThenGet(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()

	job := store.JobRecord{ID: "job-1", ContextKey: "dm:u1", Priority: 1, Status: "queued", Request: []byte(`{}`)}
	if err := s.Insert(ctx, job); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContextKey != "dm:u1" || got.Status != "queued" {
		t.Fatalf("got %+v", got)
	}
}

func TestQueueStore_GetUnknownReturnsNotFound(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	if _, err := s.Get(context.Background(), "missing"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestQueueStore_UpdateStatusToRunningSetsStartedAt(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Insert(ctx, store.JobRecord{ID: "job-2", Status: "queued", Request: []byte(`{}`)})

	if err := s.UpdateStatus(ctx, "job-2", "running", "", nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := s.Get(ctx, "job-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "running" || got.Started.IsZero() {
		t.Fatalf("got %+v, want status=running with Started set", got)
	}
}

func TestQueueStore_UpdateStatusToDoneSetsResultAndFinished(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Insert(ctx, store.JobRecord{ID: "job-3", Status: "queued", Request: []byte(`{}`)})

	if err := s.UpdateStatus(ctx, "job-3", "done", "", []string{"/out/1.png"}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := s.Get(ctx, "job-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "done" || len(got.ResultPaths) != 1 || got.Finished.IsZero() {
		t.Fatalf("got %+v, want done with one result path and Finished set", got)
	}
}

func TestQueueStore_UpdateStatusToFailedRecordsError(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Insert(ctx, store.JobRecord{ID: "job-4", Status: "queued", Request: []byte(`{}`)})

	if err := s.UpdateStatus(ctx, "job-4", "failed", "gateway timeout", nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := s.Get(ctx, "job-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "failed" || got.Error != "gateway timeout" {
		t.Fatalf("got %+v, want failed with recorded error", got)
	}
}

func TestQueueStore_ListByContextOrdersNewestFirst(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()
	earlier := time.Now().Add(-time.Minute)
	later := time.Now()
	_ = s.Insert(ctx, store.JobRecord{ID: "job-a", ContextKey: "dm:u5", Status: "queued", Request: []byte(`{}`), Created: earlier})
	_ = s.Insert(ctx, store.JobRecord{ID: "job-b", ContextKey: "dm:u5", Status: "queued", Request: []byte(`{}`), Created: later})

	got, err := s.ListByContext(ctx, "dm:u5", 0)
	if err != nil {
		t.Fatalf("ListByContext: %v", err)
	}
	if len(got) != 2 || got[0].ID != "job-b" {
		t.Fatalf("got %+v, want job-b first (newest)", got)
	}
}

func TestQueueStore_ListPendingIncludesQueuedAndRunningOnly(t *testing.T) {
	s := NewQueueStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Insert(ctx, store.JobRecord{ID: "p1", Status: "queued", Request: []byte(`{}`)})
	_ = s.Insert(ctx, store.JobRecord{ID: "p2", Status: "queued", Request: []byte(`{}`)})
	_ = s.UpdateStatus(ctx, "p2", "running", "", nil)
	_ = s.Insert(ctx, store.JobRecord{ID: "p3", Status: "queued", Request: []byte(`{}`)})
	_ = s.UpdateStatus(ctx, "p3", "done", "", nil)

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending jobs, want 2", len(pending))
	}
}
