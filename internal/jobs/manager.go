package jobs

import (
	"errors"
	"fmt"
	"sync"

	"transcriptiond/internal/domain"
)

// ErrJobAlreadyRunning is returned when a second job would become active.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when no job is in flight.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single in-flight job and guards its transitions.
type Manager struct {
	mu      sync.RWMutex
	current *domain.Job
}

// NewManager creates a manager with nothing in flight.
func NewManager() *Manager {
	return &Manager{}
}

// Begin records a freshly claimed job as the active one.
func (m *Manager) Begin(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, m.current.ID)
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("cannot begin job %s in status %s", job.ID, job.Status)
	}
	m.current = &job
	return nil
}

// Transition validates and applies a status change for the active job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoRunningJob
	}
	if status == m.current.Status {
		return nil
	}
	if !ValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}
	m.current.Status = status
	return nil
}

// Finish clears the active job and returns its last snapshot.
func (m *Manager) Finish() (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return domain.Job{}, ErrNoRunningJob
	}
	job := *m.current
	m.current = nil
	return job, nil
}

// Current returns a snapshot of the active job.
func (m *Manager) Current() (domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Job{}, false
	}
	return *m.current, true
}

// ValidTransition reports whether from -> to is a forward lifecycle edge.
// Nothing leaves a terminal status.
func ValidTransition(from, to domain.JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if from == domain.JobStatusQueued {
		return to == domain.JobStatusRunning
	}
	return from == domain.JobStatusRunning && to.Terminal()
}
