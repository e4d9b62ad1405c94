package jobs

import (
	"sync"
)

// Job represents the state of a single document conversion.
type Job struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Progress  int               `json:"progress"`
	Operation string            `json:"operation"` // e.g., "converting", "downloading", "saving"
}

// Store holds all conversion jobs in memory. Jobs are short-lived; clients
// poll the status endpoint until the job reaches a terminal state.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

func (s *Store) Create(id string) {
	s.mu.Lock()
	s.jobs[id] = &Job{Status: "pending"}
	s.mu.Unlock()
}

func (s *Store) Update(id, status, msg string, data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = status
		j.Message = msg
		j.Data = data
	}
}

// UpdateWithOperation updates message, optional data, and operation type.
func (s *Store) UpdateWithOperation(id, status, msg string, data map[string]string, operation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = status
		j.Message = msg
		j.Data = data
		j.Operation = operation
	}
}

// UpdateProgress sets the progress (0-100) for a job.
func (s *Store) UpdateProgress(id string, p int) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Progress = p
	}
}

// Get returns a copy of the job so callers never see concurrent mutation.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	jobCopy := &Job{
		Status:    j.Status,
		Message:   j.Message,
		Progress:  j.Progress,
		Operation: j.Operation,
	}
	if j.Data != nil {
		jobCopy.Data = make(map[string]string, len(j.Data))
		for k, v := range j.Data {
			jobCopy.Data[k] = v
		}
	}
	return jobCopy, true
}
