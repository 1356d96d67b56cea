package jobs

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dendotai/transpoze-app/internal/domain"
)

func newJob(id string, status domain.JobStatus) domain.Job {
	return domain.Job{ID: id, InputPath: "/in/" + id + ".mov", OutputPath: "/out/" + id + ".mp4", Status: status}
}

// TestStoreResubmitKeepsPosition checks duplicate ids replace in place.
func TestStoreResubmitKeepsPosition(t *testing.T) {
	s := NewStore()
	if !s.Submit(newJob("a", domain.JobStatusQueued)) {
		t.Fatal("first submit should enqueue")
	}
	s.Submit(newJob("b", domain.JobStatusQueued))

	again := newJob("a", domain.JobStatusReady)
	again.OutputPath = "/elsewhere/a.mp4"
	if s.Submit(again) {
		t.Fatal("resubmit should not enqueue")
	}

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	all := s.ListAll()
	if all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("order = %s,%s, want a,b", all[0].ID, all[1].ID)
	}
	if all[0].OutputPath != "/elsewhere/a.mp4" || all[0].Status != domain.JobStatusReady {
		t.Fatalf("resubmitted record = %+v", all[0])
	}
}

// TestStorePartialMutators verifies field setters leave other fields alone.
func TestStorePartialMutators(t *testing.T) {
	s := NewStore()
	job := newJob("a", domain.JobStatusQueued)
	job.StatusMessage = "Waiting in queue..."
	s.Submit(job)

	if !s.SetProgress("a", 42) {
		t.Fatal("set progress on known id should succeed")
	}
	if !s.SetStatus("a", domain.JobStatusReady) {
		t.Fatal("set status on known id should succeed")
	}
	got, _ := s.Get("a")
	if got.Progress != 42 || got.Status != domain.JobStatusReady || got.StatusMessage != "Waiting in queue..." {
		t.Fatalf("job = %+v", got)
	}

	if s.SetStatusMessage("missing", "x") {
		t.Fatal("mutating an unknown id should report false")
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("unknown id should not appear after a mutator")
	}
}

// TestStoreUpdateUnknown checks Update signals missing ids.
func TestStoreUpdateUnknown(t *testing.T) {
	s := NewStore()
	err := s.Update(newJob("ghost", domain.JobStatusQueued))
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrJobNotFound)
	}
}

// TestStoreNextIDs verifies submission-order lookups.
func TestStoreNextIDs(t *testing.T) {
	s := NewStore()
	s.Submit(newJob("a", domain.JobStatusCompleted))
	s.Submit(newJob("b", domain.JobStatusQueued))
	s.Submit(newJob("c", domain.JobStatusReady))
	s.Submit(newJob("d", domain.JobStatusReady))

	if id, _ := s.NextQueuedJobID(); id != "b" {
		t.Fatalf("next queued = %q, want b", id)
	}
	if id, _ := s.NextReadyJobID(); id != "c" {
		t.Fatalf("next ready = %q, want c", id)
	}
	if s.AnyJobProcessing() {
		t.Fatal("no job should be processing")
	}

	s.SetStatus("b", domain.JobStatusFailed)
	s.SetStatus("c", domain.JobStatusCompleted)
	s.SetStatus("d", domain.JobStatusProcessing)
	if _, ok := s.NextQueuedJobID(); ok {
		t.Fatal("expected no pending job")
	}
	if !s.AnyJobProcessing() || !s.HasActive() {
		t.Fatal("expected a processing job")
	}
}

// TestStoreClaimIsExclusive checks a second claim waits for the first job.
func TestStoreClaimIsExclusive(t *testing.T) {
	s := NewStore()
	s.Submit(newJob("a", domain.JobStatusReady))
	s.Submit(newJob("b", domain.JobStatusReady))
	s.SetProgress("a", 30)

	job, ok := s.Claim("a")
	if !ok {
		t.Fatal("first claim should succeed")
	}
	if job.Status != domain.JobStatusProcessing || job.Progress != 0 {
		t.Fatalf("claimed job = %+v", job)
	}
	if _, ok := s.Claim("b"); ok {
		t.Fatal("second claim should fail while a is processing")
	}

	s.SetStatus("a", domain.JobStatusCompleted)
	if _, ok := s.Claim("a"); ok {
		t.Fatal("terminal job must not be claimed")
	}
	if _, ok := s.Claim("b"); !ok {
		t.Fatal("claim should succeed once a is terminal")
	}
}

// TestStoreTransition verifies state machine constraints.
func TestStoreTransition(t *testing.T) {
	s := NewStore()
	s.Submit(newJob("a", domain.JobStatusQueued))

	for _, status := range []domain.JobStatus{
		domain.JobStatusReady,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
	} {
		if err := s.Transition("a", status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if err := s.Transition("a", domain.JobStatusQueued); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidTransition)
	}
	if err := s.Transition("a", domain.JobStatusCompleted); err != nil {
		t.Fatalf("same-status transition: %v", err)
	}
	if err := s.Transition("nope", domain.JobStatusReady); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrJobNotFound)
	}
}

// TestStoreClearTerminal checks removal from listing and dispatch.
func TestStoreClearTerminal(t *testing.T) {
	s := NewStore()
	s.Submit(newJob("a", domain.JobStatusCompleted))
	s.Submit(newJob("b", domain.JobStatusReady))
	s.Submit(newJob("c", domain.JobStatusFailed))

	removed := s.ClearTerminal()
	if len(removed) != 2 || removed[0] != "a" || removed[1] != "c" {
		t.Fatalf("removed = %v, want [a c]", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("cleared job still readable")
	}

	s.Submit(newJob("d", domain.JobStatusReady))
	if id, _ := s.NextReadyJobID(); id != "b" {
		t.Fatalf("next ready = %q, want b", id)
	}
	all := s.ListAll()
	if len(all) != 2 || all[1].ID != "d" {
		t.Fatalf("listing = %+v", all)
	}
}

// TestStoreConcurrentAccess exercises the store under the race detector.
func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			s.Submit(newJob(id, domain.JobStatusReady))
			s.SetProgress(id, float64(i))
			_ = s.ListAll()
			if _, ok := s.Claim(id); ok {
				s.SetStatus(id, domain.JobStatusCompleted)
			}
			_ = s.ClearTerminal()
		}(i)
	}
	wg.Wait()

	if s.AnyJobProcessing() {
		t.Fatal("no job should remain processing")
	}
}
