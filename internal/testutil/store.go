// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/repository"
)

// NewTestSQLiteStore opens an in-memory store closed at test cleanup.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedUser adds a user with token to s.
func SeedUser(t *testing.T, s *store.SQLiteStore, userID string, role domain.Role, token string) {
	t.Helper()
	if err := s.SeedUser(context.Background(), userID, role, token); err != nil {
		t.Fatalf("failed to seed user %s: %v", userID, err)
	}
}
