// AngelaMos | 2026
// memory.go

package token

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the reference Store implementation: a mutex-guarded map
// keyed by token value. It honors the full contract, including value
// uniqueness and the revoked-flag compare-and-swap, so lifecycle behavior
// can be exercised without a database.
type MemoryStore struct {
	mu      sync.Mutex
	byValue map[string]*RefreshToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byValue: make(map[string]*RefreshToken),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Insert(ctx context.Context, t *RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byValue[t.Value]; exists {
		return fmt.Errorf("insert refresh token: %w", ErrDuplicateValue)
	}

	clone := *t
	s.byValue[t.Value] = &clone
	return nil
}

func (s *MemoryStore) FindByValue(
	ctx context.Context,
	value string,
) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byValue[value]
	if !ok {
		return nil, fmt.Errorf("find refresh token: %w", ErrNotFound)
	}

	clone := *t
	return &clone, nil
}

func (s *MemoryStore) ConditionalRevoke(
	ctx context.Context,
	value, reason string,
	replacedBy *string,
	now time.Time,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("revoke refresh token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byValue[value]
	if !ok || t.Revoked {
		return 0, nil
	}

	revokedAt := now
	t.Revoked = true
	t.RevokedAt = &revokedAt
	t.RevokedReason = &reason
	t.ReplacedByValue = replacedBy

	return 1, nil
}

func (s *MemoryStore) FindActiveBySubject(
	ctx context.Context,
	subjectID string,
	now time.Time,
) ([]RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find active tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var active []RefreshToken
	for _, t := range s.byValue {
		if t.SubjectID == subjectID && t.IsActive(now) {
			active = append(active, *t)
		}
	}

	return active, nil
}

func (s *MemoryStore) DeleteExpired(
	ctx context.Context,
	now time.Time,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for value, t := range s.byValue {
		if t.ExpiresAt.Before(now) {
			delete(s.byValue, value)
			removed++
		}
	}

	return removed, nil
}

// Len reports the number of stored tokens, swept or not. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byValue)
}
