package jobs

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"media-animator/internal/domain"
)

// ErrAlreadyConverting is returned when a batch is submitted while another runs.
var ErrAlreadyConverting = errors.New("conversion already in progress")

// ErrNotConverting is returned when an update or cancel arrives in idle state.
var ErrNotConverting = errors.New("no conversion in progress")

// Manager owns the single process-wide ConversionStatus.
type Manager struct {
	mu      sync.RWMutex
	current domain.ConversionStatus
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.ConversionStatus{State: domain.BatchStateIdle},
		now:     time.Now,
	}
}

// Begin resets the status for a new batch and moves it to converting state.
func (m *Manager) Begin(batchID string, totalFiles int, outputDir string) (domain.ConversionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State == domain.BatchStateConverting {
		return m.current.Clone(), ErrAlreadyConverting
	}
	if !isValidTransition(m.current.State, domain.BatchStateConverting) {
		return m.current.Clone(), fmt.Errorf("invalid transition: %s -> %s", m.current.State, domain.BatchStateConverting)
	}

	m.current = domain.ConversionStatus{
		BatchID:      batchID,
		State:        domain.BatchStateConverting,
		IsConverting: true,
		TotalFiles:   totalFiles,
		OutputDir:    outputDir,
		Message:      "Conversion started",
		Outcomes:     make([]domain.FileOutcome, 0, totalFiles),
		StartedAt:    m.now().UTC(),
	}
	return m.current.Clone(), nil
}

// Update applies fn to the live status in one critical section.
func (m *Manager) Update(fn func(status *domain.ConversionStatus)) (domain.ConversionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State != domain.BatchStateConverting {
		return m.current.Clone(), ErrNotConverting
	}
	fn(&m.current)
	m.current.State = domain.BatchStateConverting
	m.current.IsConverting = true
	return m.current.Clone(), nil
}

// Finish records the terminal message and returns the manager to idle.
func (m *Manager) Finish(message string) (domain.ConversionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isValidTransition(m.current.State, domain.BatchStateIdle) {
		return m.current.Clone(), ErrNotConverting
	}
	m.current.State = domain.BatchStateIdle
	m.current.IsConverting = false
	m.current.CurrentFile = ""
	m.current.Message = message
	m.current.FinishedAt = m.now().UTC()
	return m.current.Clone(), nil
}

// Current returns a snapshot of the current status.
func (m *Manager) Current() domain.ConversionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// IsConverting reports whether a batch is active.
func (m *Manager) IsConverting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.State == domain.BatchStateConverting
}

// Percent maps finished files to a 0-100 progress value.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(done) * 100 / float64(total)))
	if p > 100 {
		return 100
	}
	return p
}

// isValidTransition enforces the Idle <-> Converting state machine.
func isValidTransition(from, to domain.BatchState) bool {
	switch from {
	case domain.BatchStateIdle, "":
		return to == domain.BatchStateConverting
	case domain.BatchStateConverting:
		return to == domain.BatchStateIdle
	default:
		return false
	}
}
