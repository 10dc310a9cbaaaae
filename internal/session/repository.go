package session

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// TurnRepository persists conversation turns.
type TurnRepository interface {
	// AppendTurn stores turn and keeps only the newest keep turns of its user.
	AppendTurn(ctx context.Context, turn domain.Turn, keep int) error
	// ListTurns returns the turns of a user, oldest first.
	ListTurns(ctx context.Context, userID string) ([]domain.Turn, error)
	DeleteTurns(ctx context.Context, userID string) error
	PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryRepository is a process-local TurnRepository.
type MemoryRepository struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{turns: make(map[string][]domain.Turn)}
}

func (m *MemoryRepository) AppendTurn(ctx context.Context, turn domain.Turn, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.turns[turn.UserID], turn)
	if keep > 0 && len(turns) > keep {
		trimmed := make([]domain.Turn, keep)
		copy(trimmed, turns[len(turns)-keep:])
		turns = trimmed
	}
	m.turns[turn.UserID] = turns
	return nil
}

func (m *MemoryRepository) ListTurns(ctx context.Context, userID string) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns[userID]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MemoryRepository) DeleteTurns(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.turns, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for user, turns := range m.turns {
		kept := turns[:0:0]
		for _, t := range turns {
			if t.Timestamp.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(m.turns, user)
		} else {
			m.turns[user] = kept
		}
	}
	return purged, nil
}
