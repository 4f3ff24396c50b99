package server

import (
	"testing"

	"github.com/grantforge/grantforge/internal/agent/core"
)

func TestJobStoreLifecycle(t *testing.T) {
	store, err := NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}

	if err := store.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// polls before completion are idempotent
	for i := 0; i < 3; i++ {
		job, err := store.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if job.Status != StatusProcessing {
			t.Fatalf("status = %s, want processing", job.Status)
		}
	}

	store.Complete(core.GrantDocument{"title": "T"})

	job, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot after complete: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.Result["title"] != "T" {
		t.Fatalf("result = %v", job.Result)
	}

	// completed reads are repeatable
	again, err := store.Snapshot()
	if err != nil || again.Status != StatusCompleted {
		t.Fatalf("second snapshot: %v %v", again, err)
	}
}

func TestJobStoreResubmissionResets(t *testing.T) {
	store, err := NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}

	if err := store.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	store.Complete(core.GrantDocument{"title": "first"})

	if err := store.Begin(); err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	job, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if job.Status != StatusProcessing {
		t.Fatalf("resubmission did not reset slot: %v", job)
	}
}

func TestJobStoreLastWriteWins(t *testing.T) {
	store, err := NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}

	if err := store.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	store.Complete(core.GrantDocument{"title": "first"})
	store.Complete(core.GrantDocument{"title": "second"})

	job, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if job.Result["title"] != "second" {
		t.Fatalf("result = %v, want last write", job.Result)
	}
}

func TestJobStoreFailure(t *testing.T) {
	store, err := NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}

	if err := store.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	store.Fail("generation aborted: boom")

	job, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if job.Status != StatusError || job.Message == "" {
		t.Fatalf("job = %v, want error with message", job)
	}

	// a fresh submission clears the failure
	if err := store.Begin(); err != nil {
		t.Fatalf("Begin after failure: %v", err)
	}
	job, err = store.Snapshot()
	if err != nil || job.Status != StatusProcessing {
		t.Fatalf("slot not reset: %v %v", job, err)
	}
}
