package jobs

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// ErrJobNotFound is returned when an operation names an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid job transition")

// Store holds every live job in submission order. Records and order share a
// single lock, so readers never observe one without the other.
type Store struct {
	mu      sync.RWMutex
	order   *list.List
	records map[string]*list.Element
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		order:   list.New(),
		records: make(map[string]*list.Element),
	}
}

// Submit inserts job at the back of the queue. A job whose id is already
// present replaces the stored record in place and keeps its queue position.
// It reports whether a new queue position was created.
func (s *Store) Submit(job domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.records[job.ID]; ok {
		elem.Value = &job
		return false
	}
	s.records[job.ID] = s.order.PushBack(&job)
	return true
}

// Update replaces the stored record for job.ID.
func (s *Store) Update(job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.records[job.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	elem.Value = &job
	return nil
}

// SetStatus sets the status of one job without validation.
func (s *Store) SetStatus(id string, status domain.JobStatus) bool {
	_, ok := s.Mutate(id, func(job *domain.Job) bool {
		job.Status = status
		return true
	})
	return ok
}

// SetProgress sets the progress percentage of one job.
func (s *Store) SetProgress(id string, value float64) bool {
	_, ok := s.Mutate(id, func(job *domain.Job) bool {
		job.Progress = value
		return true
	})
	return ok
}

// SetStatusMessage sets the human-readable status line of one job.
func (s *Store) SetStatusMessage(id, text string) bool {
	_, ok := s.Mutate(id, func(job *domain.Job) bool {
		job.StatusMessage = text
		return true
	})
	return ok
}

// Mutate runs fn against the stored record under the write lock. fn reports
// whether it changed the record. Mutate returns the record after fn and
// whether a change was applied; an unknown id yields false.
func (s *Store) Mutate(id string, fn func(job *domain.Job) bool) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.records[id]
	if !ok {
		return domain.Job{}, false
	}
	job := elem.Value.(*domain.Job)
	changed := fn(job)
	return *job, changed
}

// Transition applies a validated lifecycle change.
func (s *Store) Transition(id string, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job := elem.Value.(*domain.Job)
	if job.Status == status {
		return nil
	}
	if !isValidTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	return nil
}

// Claim moves a pending job to processing. It refuses when the job is not
// pending or another job is already processing.
func (s *Store) Claim(id string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.records[id]
	if !ok {
		return domain.Job{}, false
	}
	job := elem.Value.(*domain.Job)
	if !job.Status.IsPending() || s.processingLocked() {
		return *job, false
	}
	job.Status = domain.JobStatusProcessing
	job.Progress = 0
	job.Error = ""
	job.StatusMessage = "Converting video..."
	return *job, true
}

// Get returns a snapshot of one job.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.records[id]
	if !ok {
		return domain.Job{}, false
	}
	return *elem.Value.(*domain.Job), true
}

// NextQueuedJobID returns the oldest job that is queued or ready.
func (s *Store) NextQueuedJobID() (string, bool) {
	return s.first(func(status domain.JobStatus) bool { return status.IsPending() })
}

// NextReadyJobID returns the oldest job that is ready for dispatch.
func (s *Store) NextReadyJobID() (string, bool) {
	return s.first(func(status domain.JobStatus) bool { return status == domain.JobStatusReady })
}

// AnyJobProcessing reports whether some job is converting right now.
func (s *Store) AnyJobProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processingLocked()
}

// HasActive reports whether any job has not reached a terminal status.
func (s *Store) HasActive() bool {
	_, ok := s.first(func(status domain.JobStatus) bool { return !status.IsTerminal() })
	return ok
}

// ListAll returns snapshots of every job in submission order.
func (s *Store) ListAll() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, s.order.Len())
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, *elem.Value.(*domain.Job))
	}
	return out
}

// ClearTerminal removes completed and failed jobs and returns their ids.
func (s *Store) ClearTerminal() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		job := elem.Value.(*domain.Job)
		if job.Status.IsTerminal() {
			s.order.Remove(elem)
			delete(s.records, job.ID)
			removed = append(removed, job.ID)
		}
		elem = next
	}
	return removed
}

// Len returns the number of live jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

func (s *Store) first(match func(domain.JobStatus) bool) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		job := elem.Value.(*domain.Job)
		if match(job.Status) {
			return job.ID, true
		}
	}
	return "", false
}

func (s *Store) processingLocked() bool {
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*domain.Job).Status == domain.JobStatusProcessing {
			return true
		}
	}
	return false
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusReady || to == domain.JobStatusProcessing || to == domain.JobStatusFailed
	case domain.JobStatusReady:
		return to == domain.JobStatusProcessing || to == domain.JobStatusFailed
	case domain.JobStatusProcessing:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}
