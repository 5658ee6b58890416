// Package repository persists scoring outcomes against submission records and
// derives per-competition leaderboards from them.
package repository

import (
	"context"
	"sync"

	"github.com/okian/scorer/internal/domain/model"
)

// Recorder stores submission outcomes.
type Recorder interface {
	// Record inserts or replaces the submission with the same ID.
	Record(ctx context.Context, s model.Submission) error

	// Get returns a stored submission.
	// Returns ErrNotFound if the submission is unknown.
	Get(ctx context.Context, submissionID string) (model.Submission, error)

	// Delete removes a submission. Deleting an unknown id is not an error.
	Delete(ctx context.Context, submissionID string) error

	// Leaderboard returns the best graded submission per user for a
	// competition, ordered by the competition metric. limit <= 0 means all.
	Leaderboard(ctx context.Context, competitionID string, limit int) ([]model.Standing, error)

	// Count returns the number of stored submissions.
	Count(ctx context.Context) int
}

// MemoryStore is a Recorder held in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	byID          map[string]model.Submission
	byCompetition map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory recorder.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:          make(map[string]model.Submission),
		byCompetition: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) Record(_ context.Context, s model.Submission) error {
	if s.SubmissionID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[s.SubmissionID]; ok && prev.CompetitionID != s.CompetitionID {
		delete(m.byCompetition[prev.CompetitionID], s.SubmissionID)
	}
	m.byID[s.SubmissionID] = s
	ids, ok := m.byCompetition[s.CompetitionID]
	if !ok {
		ids = make(map[string]struct{})
		m.byCompetition[s.CompetitionID] = ids
	}
	ids[s.SubmissionID] = struct{}{}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, submissionID string) (model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byID[submissionID]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, submissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[submissionID]; ok {
		delete(m.byCompetition[prev.CompetitionID], submissionID)
		delete(m.byID, submissionID)
	}
	return nil
}

func (m *MemoryStore) Leaderboard(_ context.Context, competitionID string, limit int) ([]model.Standing, error) {
	m.mu.RLock()
	subs := make([]model.Submission, 0, len(m.byCompetition[competitionID]))
	for id := range m.byCompetition[competitionID] {
		subs = append(subs, m.byID[id])
	}
	m.mu.RUnlock()

	return BestPerUser(subs, limit)
}

func (m *MemoryStore) Count(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
