package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeMapping(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	fk := &pgconn.PgError{Code: "23503"}

	require.True(t, isUniqueViolation(unique))
	require.True(t, isUniqueViolation(fmt.Errorf("insert: %w", unique)))
	require.False(t, isUniqueViolation(fk))
	require.False(t, isUniqueViolation(errors.New("plain")))

	require.True(t, isForeignKeyViolation(fk))
	require.False(t, isForeignKeyViolation(unique))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, isRetryable(fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, isRetryable(errors.New("plain")))
}
