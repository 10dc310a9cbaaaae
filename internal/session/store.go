// Package session holds the bounded per-user conversation context.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/logging"
)

// DefaultMaxTurns is the context bound used when none is configured.
const DefaultMaxTurns = 10

// Store is the Session/Context Store. Writes for one user are serialized by
// a per-user lock; different users never contend.
type Store struct {
	repo     TurnRepository
	maxTurns int
	ttl      time.Duration
	locks    *KeyedMutex
	now      func() time.Time
}

// NewStore creates a store keeping at most maxTurns turns per user. Turns
// older than ttl are hidden from readers; ttl <= 0 disables age eviction.
func NewStore(repo TurnRepository, maxTurns int, ttl time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		repo:     repo,
		maxTurns: maxTurns,
		ttl:      ttl,
		locks:    NewKeyedMutex(),
		now:      time.Now,
	}
}

// MaxTurns returns the per-user bound.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}

// GetContext returns the user's recent turns, oldest first. It never fails:
// repository errors yield an empty context.
func (s *Store) GetContext(ctx context.Context, userID string) domain.ConversationContext {
	if userID == "" {
		return domain.ConversationContext{}
	}
	turns, err := s.repo.ListTurns(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to load context", "user_id", userID, "error", err)
		return domain.ConversationContext{}
	}

	out := make(domain.ConversationContext, 0, len(turns))
	var cutoff time.Time
	if s.ttl > 0 {
		cutoff = s.now().Add(-s.ttl)
	}
	for _, t := range turns {
		if s.ttl > 0 && t.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	if len(out) > s.maxTurns {
		out = out[len(out)-s.maxTurns:]
	}
	return out
}

// Append adds turn at the end of the user's context and trims the oldest
// turns beyond the bound, as one unit under the user's lock.
func (s *Store) Append(ctx context.Context, userID string, turn domain.Turn) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	turn.UserID = userID
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.repo.AppendTurn(ctx, turn, s.maxTurns); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Clear drops every turn of the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.repo.DeleteTurns(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear context: %w", err)
	}
	return nil
}

// PurgeExpired drops turns older than the store TTL from the repository.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	return s.repo.PurgeTurnsBefore(ctx, s.now().Add(-s.ttl))
}
