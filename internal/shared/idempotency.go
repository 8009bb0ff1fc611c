package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxIdempotencyKeyLen bounds client supplied keys.
const MaxIdempotencyKeyLen = 128

// IdempotencyStore records request keys already accepted, so a retried
// submission is rejected instead of creating a second journal entry.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// ErrIdempotencyConflict indicates the key was already used.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// ErrIdempotencyKeyInvalid indicates an empty or oversized key.
var ErrIdempotencyKeyInvalid = errors.New("idempotency key invalid")

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > MaxIdempotencyKeyLen {
		return "", ErrIdempotencyKeyInvalid
	}
	return key, nil
}

// CheckAndInsert claims key for module. It returns ErrIdempotencyConflict
// when the key was claimed before.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`, key, module, s.now())
	if err != nil {
		return fmt.Errorf("idempotency: claim key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Cleanup removes keys claimed more than olderThan ago and returns how many
// were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete releases a key so a failed request can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
