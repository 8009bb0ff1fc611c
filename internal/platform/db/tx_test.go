package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryableClassifiesSQLState(t *testing.T) {
	require.True(t, Retryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, Retryable(fmt.Errorf("post entry: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, Retryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, Retryable(errors.New("boom")))
	require.False(t, Retryable(nil))
}

func TestUniqueViolation(t *testing.T) {
	require.True(t, UniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, UniqueViolation(&pgconn.PgError{Code: "40001"}))
}
