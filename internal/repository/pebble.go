package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

const turnKeyPrefix = "turn/"

// PebbleStore keeps conversation turns in a Pebble key-value store.
// Keys are turn/<escaped user>/<20-digit sequence>, so a prefix scan yields
// a user's turns in insertion order.
type PebbleStore struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// NewPebbleStore opens (or creates) a Pebble store at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{})
}

// NewMemPebbleStore opens a Pebble store backed by an in-memory filesystem.
func NewMemPebbleStore() (*PebbleStore, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	s := &PebbleStore{db: db}
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Close closes the store.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func userPrefix(userID string) []byte {
	return []byte(turnKeyPrefix + url.PathEscape(userID) + "/")
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *PebbleStore) keys(prefix []byte) ([][]byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	return keys, iter.Error()
}

// AppendTurn writes turn and drops the oldest turns beyond keep in one batch.
func (s *PebbleStore) AppendTurn(ctx context.Context, turn domain.Turn, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	prefix := userPrefix(turn.UserID)
	existing, err := s.keys(prefix)
	if err != nil {
		return err
	}

	key := append(append([]byte(nil), prefix...), []byte(fmt.Sprintf("%020d", s.seq.Add(1)))...)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, data, nil); err != nil {
		return fmt.Errorf("set turn: %w", err)
	}

	if keep > 0 {
		excess := len(existing) + 1 - keep
		for i := 0; i < excess && i < len(existing); i++ {
			if err := batch.Delete(existing[i], nil); err != nil {
				return fmt.Errorf("delete turn: %w", err)
			}
		}
	}

	return batch.Commit(pebble.Sync)
}

// ListTurns returns the turns of a user, oldest first.
func (s *PebbleStore) ListTurns(ctx context.Context, userID string) ([]domain.Turn, error) {
	prefix := userPrefix(userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var turns []domain.Turn
	for iter.First(); iter.Valid(); iter.Next() {
		var t domain.Turn
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode turn %q: %w", iter.Key(), err)
		}
		turns = append(turns, t)
	}
	return turns, iter.Error()
}

// DeleteTurns drops every turn of a user.
func (s *PebbleStore) DeleteTurns(ctx context.Context, userID string) error {
	prefix := userPrefix(userID)
	return s.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync)
}

// PurgeTurnsBefore drops every turn older than cutoff and returns how many were removed.
func (s *PebbleStore) PurgeTurnsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	prefix := []byte(turnKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("create iterator: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	purged := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			continue
		}
		var t domain.Turn
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if t.Timestamp.Before(cutoff) {
			if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				iter.Close()
				return 0, fmt.Errorf("delete turn: %w", err)
			}
			purged++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if purged == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return purged, nil
}
