package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is the test double for both halves of the outbox.
type InMemoryStore struct {
	mu   sync.Mutex
	jobs []*memoryJob
}

type memoryJob struct {
	job       Job
	status    JobStatus
	claimedAt time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Enqueue(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &memoryJob{job: job, status: StatusPending})
	return nil
}

func (s *InMemoryStore) Claim(_ context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, entry := range s.jobs {
		if len(out) >= limit {
			break
		}
		if entry.status != StatusPending {
			continue
		}
		entry.status = StatusPublishing
		entry.job.Attempts++
		entry.claimedAt = time.Now()
		out = append(out, entry.job)
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jobID := range ids {
		if entry := s.find(jobID); entry != nil {
			entry.status = StatusPublished
		}
	}
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, jobID uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.find(jobID)
	if entry == nil {
		return nil
	}
	entry.job.LastError = cause
	if entry.job.Attempts >= MaxAttempts {
		entry.status = StatusFailed
	} else {
		entry.status = StatusPending
	}
	return nil
}

func (s *InMemoryStore) ReleaseStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	released := 0
	for _, entry := range s.jobs {
		if entry.status == StatusPublishing && entry.claimedAt.Before(cutoff) {
			entry.status = StatusPending
			released++
		}
	}
	return released, nil
}

// Pending returns the jobs still awaiting relay, in enqueue order. Test
// helper only.
func (s *InMemoryStore) Pending() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, entry := range s.jobs {
		if entry.status == StatusPending {
			out = append(out, entry.job)
		}
	}
	return out
}

// StatusOf reports the status of one job. Test helper only.
func (s *InMemoryStore) StatusOf(jobID uuid.UUID) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.find(jobID); entry != nil {
		return entry.status, true
	}
	return "", false
}

func (s *InMemoryStore) find(jobID uuid.UUID) *memoryJob {
	for _, entry := range s.jobs {
		if entry.job.ID == jobID {
			return entry
		}
	}
	return nil
}
